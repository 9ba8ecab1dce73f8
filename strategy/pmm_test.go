package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"swapflow/models"
)

func newPMM(spreadPct string, levels int) *PureMM {
	return NewPureMM(PureMMConfig{
		Base:          "WBNB",
		Quote:         "USDT",
		SpreadPct:     decimal.RequireFromString(spreadPct),
		LevelsPerSide: levels,
		OrderAmount:   decimal.RequireFromString("1"),
		Refresh:       time.Minute,
	})
}

func TestPureMMLadderAroundMid(t *testing.T) {
	p := newPMM("1", 2)
	p.Evaluate(time.Now(), snapAt("100"))

	sells := p.SellLevels()
	buys := p.BuyLevels()
	if len(sells) != 2 || len(buys) != 2 {
		t.Fatalf("got %d sells, %d buys, want 2 each", len(sells), len(buys))
	}
	wantSells := []string{"101", "102"}
	wantBuys := []string{"99", "98"}
	for i := range sells {
		if !sells[i].Price.Equal(decimal.RequireFromString(wantSells[i])) {
			t.Errorf("sell %d price = %s, want %s", i, sells[i].Price, wantSells[i])
		}
		if !buys[i].Price.Equal(decimal.RequireFromString(wantBuys[i])) {
			t.Errorf("buy %d price = %s, want %s", i, buys[i].Price, wantBuys[i])
		}
	}
}

func TestPureMMClampsNonPositiveLevels(t *testing.T) {
	p := newPMM("60", 2)
	p.Evaluate(time.Now(), snapAt("100"))

	buys := p.BuyLevels()
	// Second buy level would be 100*(1-1.2) = -20; clamped to 1% of mid.
	if want := decimal.RequireFromString("1"); !buys[1].Price.Equal(want) {
		t.Errorf("clamped level price = %s, want %s", buys[1].Price, want)
	}
	if buys[1].Price.Sign() <= 0 {
		t.Error("no level may sit at or below zero")
	}
}

func TestPureMMEmitsInnermostCrossedLevel(t *testing.T) {
	p := newPMM("1", 2)
	now := time.Now()
	p.Evaluate(now, snapAt("100"))

	intents, _ := p.Evaluate(now.Add(time.Second), snapAt("101.5"))
	if len(intents) != 1 {
		t.Fatalf("got %d intents, want 1", len(intents))
	}
	if intents[0].Side != models.SideSell {
		t.Errorf("side = %s, want sell", intents[0].Side)
	}
	if !intents[0].Price.Equal(decimal.RequireFromString("101")) {
		t.Errorf("triggered level = %s, want innermost 101", intents[0].Price)
	}

	// One order in flight at a time.
	if intents, _ := p.Evaluate(now.Add(2*time.Second), snapAt("102.5")); len(intents) != 0 {
		t.Errorf("in-flight evaluation emitted %d intents", len(intents))
	}

	p.OnResult(Result{Filled: true})
	if got := p.SellLevels()[0].Status; got != models.LevelFilled {
		t.Errorf("filled level status = %s", got)
	}

	// Next tick moves on to the next crossed sell level.
	intents, _ = p.Evaluate(now.Add(3*time.Second), snapAt("102.5"))
	if len(intents) != 1 || !intents[0].Price.Equal(decimal.RequireFromString("102")) {
		t.Fatalf("expected the 102 level to trigger next, got %+v", intents)
	}
}

func TestPureMMReopensFailedLevel(t *testing.T) {
	p := newPMM("1", 1)
	now := time.Now()
	p.Evaluate(now, snapAt("100"))

	intents, _ := p.Evaluate(now.Add(time.Second), snapAt("98.5"))
	if len(intents) != 1 || intents[0].Side != models.SideBuy {
		t.Fatalf("expected one buy intent, got %+v", intents)
	}
	p.OnResult(Result{Err: netErr()})

	if got := p.BuyLevels()[0].Status; got != models.LevelOpen {
		t.Fatalf("failed level status = %s, want open", got)
	}
	intents, _ = p.Evaluate(now.Add(2*time.Second), snapAt("98.5"))
	if len(intents) != 1 {
		t.Errorf("reopened level should re-emit, got %d intents", len(intents))
	}
}

func TestPureMMRefreshReplacesLadder(t *testing.T) {
	p := newPMM("1", 1)
	now := time.Now()
	p.Evaluate(now, snapAt("100"))

	p.Evaluate(now.Add(2*time.Minute), snapAt("200"))
	sells := p.SellLevels()
	if !sells[0].Price.Equal(decimal.RequireFromString("202")) {
		t.Errorf("refreshed sell level = %s, want 202", sells[0].Price)
	}
	buys := p.BuyLevels()
	if !buys[0].Price.Equal(decimal.RequireFromString("198")) {
		t.Errorf("refreshed buy level = %s, want 198", buys[0].Price)
	}
}

func TestPureMMNeverDone(t *testing.T) {
	p := newPMM("1", 1)
	if done, _ := p.Done(); done {
		t.Error("pure market making must not self-terminate")
	}
}
