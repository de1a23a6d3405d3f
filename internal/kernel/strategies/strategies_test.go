package strategies

import (
	"testing"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/kernel"
)

func TestRegistry_Known_CaseInsensitive(t *testing.T) {
	r := Default()

	for _, name := range []string{"BuyAndHold", "buyandhold", "  BUYANDHOLD  ", "MovingAverageCrossover", "movingaveragecrossover"} {
		if !r.Known(name) {
			t.Errorf("expected %q to be known", name)
		}
	}

	if r.Known("nonexistentStrategy") {
		t.Error("expected unregistered strategy name to be unknown")
	}
}

func TestRegistry_Build_UnknownNameReturnsErrUnknownStrategy(t *testing.T) {
	r := Default()
	_, err := r.Build("doesNotExist", nil)
	if err != ErrUnknownStrategy {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestRegistry_Build_ResolvesCaseInsensitively(t *testing.T) {
	r := Default()
	s, err := r.Build("BUYANDHOLD", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Name() != "BuyAndHold" {
		t.Errorf("Name() = %q, want BuyAndHold", s.Name())
	}
}

func TestRegistry_Register_OverridesExistingFactory(t *testing.T) {
	r := Default()
	called := false
	r.Register("BuyAndHold", func(params map[string]any) (kernel.Strategy, error) {
		called = true
		return newBuyAndHold(params)
	})

	if _, err := r.Build("buyAndHold", nil); err != nil {
		t.Fatalf("unexpected error after re-registering: %v", err)
	}
	if !called {
		t.Error("expected the overriding factory to be invoked instead of the original")
	}
}

func TestParamFloat_DefaultsWhenMissingOrWrongType(t *testing.T) {
	params := map[string]any{"a": 5.0, "b": 3, "c": "not-a-number"}

	if got := paramFloat(params, "a", 1); got != 5.0 {
		t.Errorf("paramFloat(a) = %v, want 5.0", got)
	}
	if got := paramFloat(params, "b", 1); got != 3.0 {
		t.Errorf("paramFloat(b) = %v, want 3.0 (int coerced)", got)
	}
	if got := paramFloat(params, "c", 9); got != 9 {
		t.Errorf("paramFloat(c) = %v, want default 9 for unsupported type", got)
	}
	if got := paramFloat(params, "missing", 42); got != 42 {
		t.Errorf("paramFloat(missing) = %v, want default 42", got)
	}
}

func TestParamInt_TruncatesFloat(t *testing.T) {
	params := map[string]any{"window": 12.9}
	if got := paramInt(params, "window", 1); got != 12 {
		t.Errorf("paramInt(window) = %v, want 12", got)
	}
}
