package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/boh_backend/models"
)

func TestConditionMatches_OperatorTable(t *testing.T) {
	cases := []struct {
		op        models.RuleConditionOperator
		value     string
		threshold string
		want      bool
	}{
		{models.RuleOperatorGreaterThan, "5", "3", true},
		{models.RuleOperatorGreaterThan, "3", "3", false},
		{models.RuleOperatorGreaterEqual, "3", "3", true},
		{models.RuleOperatorGreaterEqual, "2.9", "3", false},
		{models.RuleOperatorLessThan, "2", "3", true},
		{models.RuleOperatorLessThan, "3", "3", false},
		{models.RuleOperatorLessEqual, "3", "3", true},
		{models.RuleOperatorLessEqual, "3.1", "3", false},
		{models.RuleOperatorEqual, "3.0", "3", true},
		{models.RuleOperatorEqual, "3.01", "3", false},
	}
	for _, tc := range cases {
		got := conditionMatches(tc.op, dec(tc.value), dec(tc.threshold))
		if got != tc.want {
			t.Errorf("%s %s %s: expected %v, got %v", tc.value, tc.op, tc.threshold, tc.want, got)
		}
	}
}

func TestFirstMatchingRule_FirstMatchWins(t *testing.T) {
	// Rules arrive already ordered: priority asc, id asc.
	rules := []*models.AlertRule{
		{ID: 3, Priority: 10, Operator: models.RuleOperatorGreaterThan, Threshold: dec("100")},
		{ID: 1, Priority: 20, Operator: models.RuleOperatorGreaterThan, Threshold: dec("50")},
		{ID: 2, Priority: 20, Operator: models.RuleOperatorGreaterThan, Threshold: dec("10")},
	}

	// 60 skips the priority-10 rule and lands on id=1, not id=2.
	got := FirstMatchingRule(rules, dec("60"))
	if got == nil || got.ID != 1 {
		t.Fatalf("expected rule 1 to match first, got %+v", got)
	}

	// 200 matches the highest-priority rule outright.
	got = FirstMatchingRule(rules, dec("200"))
	if got == nil || got.ID != 3 {
		t.Fatalf("expected rule 3 to match first, got %+v", got)
	}

	// Nothing matches below every threshold.
	if got := FirstMatchingRule(rules, dec("5")); got != nil {
		t.Fatalf("expected no match, got rule %d", got.ID)
	}
}

func TestFirstMatchingRule_EmptyRuleSet(t *testing.T) {
	if got := FirstMatchingRule(nil, dec("1000")); got != nil {
		t.Fatalf("expected nil for empty rule set, got rule %d", got.ID)
	}
}

func TestVenueFromEvalContext(t *testing.T) {
	cases := []struct {
		name    string
		evalCtx map[string]interface{}
		want    int
	}{
		{"int", map[string]interface{}{"venue_id": 7}, 7},
		{"int64", map[string]interface{}{"venue_id": int64(8)}, 8},
		// JSON round-trips through the Pub/Sub path decode numbers as float64.
		{"float64", map[string]interface{}{"venue_id": float64(9)}, 9},
		{"missing", map[string]interface{}{}, 0},
		{"nil map", nil, 0},
		{"wrong type", map[string]interface{}{"venue_id": "12"}, 0},
	}
	for _, tc := range cases {
		if got := VenueFromEvalContext(tc.evalCtx); got != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}
