package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestVersionedSetting_EffectiveAt_HalfOpenBoundaries(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	v := VersionedSetting{EffectiveFrom: from, EffectiveTo: &to}

	if v.EffectiveAt(from.Add(-time.Nanosecond)) {
		t.Fatal("instant before effective_from must not match")
	}
	if !v.EffectiveAt(from) {
		t.Fatal("effective_from itself must match (closed lower bound)")
	}
	if !v.EffectiveAt(to.Add(-time.Nanosecond)) {
		t.Fatal("instant just before effective_to must match")
	}
	if v.EffectiveAt(to) {
		t.Fatal("effective_to itself must not match (open upper bound)")
	}
}

func TestVersionedSetting_EffectiveAt_OpenEnded(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	v := VersionedSetting{EffectiveFrom: from}

	if !v.EffectiveAt(from.AddDate(10, 0, 0)) {
		t.Fatal("open-ended version must cover any future instant")
	}
}

func TestVersionedSetting_AdjacentVersionsCoverEveryInstantOnce(t *testing.T) {
	cut := time.Date(2026, 4, 15, 12, 30, 0, 0, time.UTC)
	older := VersionedSetting{
		Version:       1,
		EffectiveFrom: cut.AddDate(0, -1, 0),
		EffectiveTo:   &cut,
	}
	newer := VersionedSetting{Version: 2, EffectiveFrom: cut}

	// The cutover instant belongs to exactly one version.
	if older.EffectiveAt(cut) {
		t.Fatal("closed version still claims the cutover instant")
	}
	if !newer.EffectiveAt(cut) {
		t.Fatal("new version must own the cutover instant")
	}
}

func TestSettingsSnapshot_RoundTrip(t *testing.T) {
	snap := DefaultSettingsSnapshot()
	payload, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	v := VersionedSetting{Payload: payload}

	got, err := v.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if got.AnomalyWindowSize != snap.AnomalyWindowSize || got.AnomalyMinWindow != snap.AnomalyMinWindow {
		t.Fatalf("window config lost in round trip: %+v", got)
	}
	if !got.AnomalySigmaThreshold.Equal(snap.AnomalySigmaThreshold) {
		t.Fatalf("sigma threshold lost in round trip: %s", got.AnomalySigmaThreshold)
	}
}

func TestUpdateSettingsInput_Validate(t *testing.T) {
	valid := func() UpdateSettingsInput {
		return UpdateSettingsInput{Payload: DefaultSettingsSnapshot()}
	}

	if err := func() error { in := valid(); return in.validate() }(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	in := valid()
	in.Payload.AnomalyMinWindow = in.Payload.AnomalyWindowSize + 1
	if err := in.validate(); err == nil {
		t.Fatal("min window above window size must be rejected")
	}

	in = valid()
	in.Payload.AnomalySigmaThreshold = decimal.Zero
	if err := in.validate(); err == nil {
		t.Fatal("zero sigma threshold must be rejected")
	}

	in = valid()
	in.Payload.VarianceCriticalPct = in.Payload.VarianceWarningPct
	if err := in.validate(); err == nil {
		t.Fatal("critical threshold must exceed warning threshold")
	}

	in = valid()
	in.Payload.StalenessBoundSeconds = 0
	if err := in.validate(); err == nil {
		t.Fatal("zero staleness bound must be rejected")
	}
}
