package domain

import "testing"

func sampleResult() *Result {
	return &Result{
		ID:           1,
		JobID:        42,
		TotalReturn:  0.25,
		CAGR:         0.11,
		Volatility:   0.18,
		SharpeRatio:  1.4,
		SortinoRatio: 1.9,
		MaxDrawdown:  0.35,
		WinRate:      0.6,
	}
}

func TestResult_Metric_LargerIsBetterMetrics(t *testing.T) {
	r := sampleResult()

	cases := []struct {
		name string
		want float64
	}{
		{"totalReturn", r.TotalReturn},
		{"sharpeRatio", r.SharpeRatio},
		{"sortinoRatio", r.SortinoRatio},
		{"cagr", r.CAGR},
		{"winRate", r.WinRate},
	}

	for _, c := range cases {
		got, ok := r.Metric(c.name)
		if !ok {
			t.Errorf("Metric(%q): ok = false, want true", c.name)
		}
		if got != c.want {
			t.Errorf("Metric(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestResult_Metric_CaseInsensitive(t *testing.T) {
	r := sampleResult()

	got, ok := r.Metric("ShArPeRaTiO")
	if !ok || got != r.SharpeRatio {
		t.Errorf("Metric case-insensitive lookup failed: got %v, ok=%v", got, ok)
	}
}

func TestResult_Metric_MaxDrawdownIsNegatedSoShallowerWins(t *testing.T) {
	shallow := sampleResult()
	shallow.MaxDrawdown = 0.1

	deep := sampleResult()
	deep.MaxDrawdown = 0.5

	shallowVal, ok := shallow.Metric("maxDrawdown")
	if !ok {
		t.Fatal("expected maxDrawdown to be a known metric")
	}
	deepVal, _ := deep.Metric("maxDrawdown")

	if shallowVal <= deepVal {
		t.Fatalf("expected shallower drawdown to have a larger (better) metric value: shallow=%v deep=%v", shallowVal, deepVal)
	}
}

func TestResult_Metric_UnknownNameFallsBackToSharpeWithFalse(t *testing.T) {
	r := sampleResult()

	got, ok := r.Metric("totallyUnknown")
	if ok {
		t.Error("expected ok=false for an unknown metric name")
	}
	if got != r.SharpeRatio {
		t.Errorf("expected fallback value to be SharpeRatio (%v), got %v", r.SharpeRatio, got)
	}
}
