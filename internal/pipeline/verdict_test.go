package pipeline

import "testing"

func TestParseVerdict(t *testing.T) {
	cases := []struct {
		in   string
		want Verdict
	}{
		{"approve", VerdictApprove},
		{"REVISE", VerdictRevise},
		{" reject ", VerdictReject},
		{"escalate", VerdictEscalate},
		{"ship it", VerdictEscalate},
		{"", VerdictEscalate},
	}
	for _, tc := range cases {
		if got := ParseVerdict(tc.in); got != tc.want {
			t.Errorf("ParseVerdict(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestRiskLevelOrdering(t *testing.T) {
	if !(RiskLow < RiskMedium && RiskMedium < RiskHigh && RiskHigh < RiskCritical) {
		t.Fatal("risk levels not ordered")
	}
	if ParseRiskLevel("critical") != RiskCritical {
		t.Fatal("parse critical")
	}
	if ParseRiskLevel("unheard-of") != RiskLow {
		t.Fatal("unknown risk should default low")
	}
}

func TestFilterFlags(t *testing.T) {
	got := filterFlags([]string{"safety", "HARMFUL", " accuracy ", "vibes", ""})
	want := []string{"safety", "harmful", "accuracy"}
	if len(got) != len(want) {
		t.Fatalf("flags = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("flags = %v, want %v", got, want)
		}
	}
}

func TestConfidenceBasisPoints(t *testing.T) {
	cases := []struct {
		in   float64
		want int
	}{
		{0, 0},
		{0.85, 8500},
		{1, 10000},
		{-0.5, 0},
		{1.5, 10000},
	}
	for _, tc := range cases {
		if got := ConfidenceBasisPoints(tc.in); got != tc.want {
			t.Errorf("ConfidenceBasisPoints(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestStateTransitions(t *testing.T) {
	legal := [][2]State{
		{StateReceived, StatePolicyChecked},
		{StatePolicyChecked, StateWorked},
		{StateWorked, StateAudited},
		{StateAudited, StateResolved},
		{StateResolved, StateDelivered},
		{StateResolved, StateWorked},
		{StateReceived, StateAborted},
		{StateAudited, StateAborted},
	}
	for _, edge := range legal {
		if !CanTransition(edge[0], edge[1]) {
			t.Errorf("%s -> %s should be legal", edge[0], edge[1])
		}
	}

	illegal := [][2]State{
		{StateReceived, StateWorked},
		{StateDelivered, StateWorked},
		{StateAborted, StateReceived},
		{StateWorked, StateDelivered},
	}
	for _, edge := range illegal {
		if CanTransition(edge[0], edge[1]) {
			t.Errorf("%s -> %s should be illegal", edge[0], edge[1])
		}
	}
}
