package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/boh_backend/models"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestVariancePct(t *testing.T) {
	got := variancePct(dec("1000"), dec("1100"))
	if !got.Equal(dec("10")) {
		t.Fatalf("expected +10%%, got %s", got)
	}
	got = variancePct(dec("1000"), dec("900"))
	if !got.Equal(dec("-10")) {
		t.Fatalf("expected -10%%, got %s", got)
	}
	// A zero budget cannot produce a percentage; it must not divide.
	if got := variancePct(decimal.Zero, dec("500")); !got.IsZero() {
		t.Fatalf("expected 0 for zero budget, got %s", got)
	}
}

func TestClassifyVariance_CostMetricBands(t *testing.T) {
	warning := dec("5")
	critical := dec("15")

	cases := []struct {
		pct  string
		want models.SeverityBand
	}{
		{"0", models.SeverityBandOk},
		{"4.99", models.SeverityBandOk},
		{"5", models.SeverityBandWarning},
		{"10", models.SeverityBandWarning},
		{"14.99", models.SeverityBandWarning},
		{"15", models.SeverityBandCritical},
		{"40", models.SeverityBandCritical},
		// Under cost budget is favorable, never banded.
		{"-10", models.SeverityBandOk},
		{"-40", models.SeverityBandOk},
	}
	for _, tc := range cases {
		got := ClassifyVariance(models.VarianceMetricCogs, dec(tc.pct), warning, critical)
		if got != tc.want {
			t.Errorf("cogs %s%%: expected %s, got %s", tc.pct, tc.want, got)
		}
	}
}

func TestClassifyVariance_SalesIsSignInverted(t *testing.T) {
	warning := dec("5")
	critical := dec("15")

	// Missing the sales budget by 10% is adverse.
	if got := ClassifyVariance(models.VarianceMetricSales, dec("-10"), warning, critical); got != models.SeverityBandWarning {
		t.Fatalf("sales -10%%: expected warning, got %s", got)
	}
	if got := ClassifyVariance(models.VarianceMetricSales, dec("-20"), warning, critical); got != models.SeverityBandCritical {
		t.Fatalf("sales -20%%: expected critical, got %s", got)
	}
	// Beating the sales budget is favorable regardless of magnitude.
	if got := ClassifyVariance(models.VarianceMetricSales, dec("25"), warning, critical); got != models.SeverityBandOk {
		t.Fatalf("sales +25%%: expected ok, got %s", got)
	}
}

func TestClassifyVariance_LaborTreatedAsCost(t *testing.T) {
	if got := ClassifyVariance(models.VarianceMetricLabor, dec("10"), dec("5"), dec("15")); got != models.SeverityBandWarning {
		t.Fatalf("labor +10%%: expected warning, got %s", got)
	}
}

func TestAlertSeverityForBand(t *testing.T) {
	if sev, adverse := AlertSeverityForBand(models.SeverityBandWarning); !adverse || sev != models.AlertSeverityWarning {
		t.Fatalf("warning band: expected warning alert, got %s (adverse=%v)", sev, adverse)
	}
	if sev, adverse := AlertSeverityForBand(models.SeverityBandCritical); !adverse || sev != models.AlertSeverityCritical {
		t.Fatalf("critical band: expected critical alert, got %s (adverse=%v)", sev, adverse)
	}
	// The ok band raises nothing.
	if _, adverse := AlertSeverityForBand(models.SeverityBandOk); adverse {
		t.Fatal("ok band must not raise an alert")
	}
}

func TestPrimeCostPct(t *testing.T) {
	// (300 COGS + 250 labor) / 1000 sales = 55%.
	got := PrimeCostPct(dec("300"), dec("250"), dec("1000"))
	if !got.Equal(dec("55")) {
		t.Fatalf("expected 55, got %s", got)
	}
	if got := PrimeCostPct(dec("300"), dec("250"), decimal.Zero); !got.IsZero() {
		t.Fatalf("zero sales must report 0, got %s", got)
	}
}

func TestSalesPerLaborHour(t *testing.T) {
	got := SalesPerLaborHour(dec("1200"), dec("40"))
	if !got.Equal(dec("30")) {
		t.Fatalf("expected 30, got %s", got)
	}
	if got := SalesPerLaborHour(dec("1200"), decimal.Zero); !got.IsZero() {
		t.Fatalf("zero hours must report 0, got %s", got)
	}
}
