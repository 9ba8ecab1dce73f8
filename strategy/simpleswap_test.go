package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"swapflow/connector"
	"swapflow/models"
)

func TestSimpleSwapExactInput(t *testing.T) {
	s := NewSimpleSwap(SimpleSwapConfig{
		Base:         "WBNB",
		Quote:        "USDT",
		Side:         models.SideSell,
		Amount:       decimal.RequireFromString("2"),
		AmountIsBase: true,
		SlippageBps:  50,
	})

	intents, _ := s.Evaluate(time.Now(), snapAt("300"))
	if len(intents) != 1 {
		t.Fatalf("got %d intents, want 1", len(intents))
	}
	if !intents[0].Amount.Equal(decimal.RequireFromString("2")) || !intents[0].AmountIsBase {
		t.Errorf("intent = %+v, want 2 base units", intents[0])
	}

	s.OnResult(Result{Intent: intents[0], Filled: true})
	done, why := s.Done()
	if !done || why != "completed: swap filled" {
		t.Errorf("Done() = %v, %q", done, why)
	}
	if intents, _ := s.Evaluate(time.Now(), snapAt("300")); len(intents) != 0 {
		t.Errorf("terminal strategy emitted %d intents", len(intents))
	}
}

func TestSimpleSwapExactOutputConversion(t *testing.T) {
	// Buy 10 base: spend token is quote, so the amount needs converting.
	s := NewSimpleSwap(SimpleSwapConfig{
		Base:         "WBNB",
		Quote:        "USDT",
		Side:         models.SideBuy,
		Amount:       decimal.RequireFromString("10"),
		AmountIsBase: true,
		SlippageBps:  50,
	})

	intents, _ := s.Evaluate(time.Now(), snapAt("100"))
	if len(intents) != 1 {
		t.Fatalf("got %d intents, want 1", len(intents))
	}
	if want := decimal.RequireFromString("1000"); !intents[0].Amount.Equal(want) {
		t.Errorf("spend = %s, want %s", intents[0].Amount, want)
	}
	if intents[0].AmountIsBase {
		t.Error("buy spend should be in quote units")
	}
}

func TestSimpleSwapFallsBackOnceOnValidationFailure(t *testing.T) {
	s := NewSimpleSwap(SimpleSwapConfig{
		Base:         "WBNB",
		Quote:        "USDT",
		Side:         models.SideBuy,
		Amount:       decimal.RequireFromString("10"),
		AmountIsBase: true,
		SlippageBps:  50,
	})

	intents, _ := s.Evaluate(time.Now(), snapAt("100"))
	if len(intents) != 1 {
		t.Fatalf("got %d intents, want 1", len(intents))
	}

	s.OnResult(Result{
		Intent: intents[0],
		Err:    connector.NewValidation("validate", errors.New("insufficient USDT balance")),
	})
	if done, _ := s.Done(); done {
		t.Fatal("validation failure in exact-output mode should fall back, not terminate")
	}

	intents, _ = s.Evaluate(time.Now(), snapAt("100"))
	if len(intents) != 1 {
		t.Fatalf("fallback emitted %d intents, want 1", len(intents))
	}
	// 1000 shrunk by the 50 bps slippage buffer.
	if want := decimal.RequireFromString("995"); !intents[0].Amount.Equal(want) {
		t.Errorf("fallback spend = %s, want %s", intents[0].Amount, want)
	}
	if intents[0].AmountIsBase {
		t.Error("fallback spend should stay in quote units")
	}

	// Second validation failure terminates: the fallback fires once.
	s.OnResult(Result{
		Intent: intents[0],
		Err:    connector.NewValidation("validate", errors.New("insufficient USDT balance")),
	})
	done, why := s.Done()
	if !done {
		t.Fatal("second validation failure should be terminal")
	}
	if why == "" || why == "completed: swap filled" {
		t.Errorf("terminal reason = %q, want a failure reason", why)
	}
	if intents, _ := s.Evaluate(time.Now(), snapAt("100")); len(intents) != 0 {
		t.Errorf("terminal strategy emitted %d intents", len(intents))
	}
}

func TestSimpleSwapNetworkFailureTerminates(t *testing.T) {
	s := NewSimpleSwap(SimpleSwapConfig{
		Base:         "WBNB",
		Quote:        "USDT",
		Side:         models.SideBuy,
		Amount:       decimal.RequireFromString("10"),
		AmountIsBase: true,
		SlippageBps:  50,
	})

	intents, _ := s.Evaluate(time.Now(), snapAt("100"))
	if len(intents) != 1 {
		t.Fatalf("got %d intents, want 1", len(intents))
	}
	s.OnResult(Result{Intent: intents[0], Err: netErr()})

	done, _ := s.Done()
	if !done {
		t.Error("non-validation failure should terminate without fallback")
	}
}
