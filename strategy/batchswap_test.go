package strategy

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"swapflow/models"
)

func newSellLadder(t *testing.T, levels int, min, max string) *BatchSwap {
	t.Helper()
	return NewBatchSwap(BatchSwapConfig{
		Base:         "WBNB",
		Quote:        "USDT",
		Side:         models.SideSell,
		TotalAmount:  decimal.RequireFromString("30"),
		AmountIsBase: true,
		MinPrice:     decimal.RequireFromString(min),
		MaxPrice:     decimal.RequireFromString(max),
		NumLevels:    levels,
	})
}

func TestBatchSwapLevelGrid(t *testing.T) {
	b := newSellLadder(t, 3, "1.0", "1.2")
	want := []string{"1", "1.1", "1.2"}
	levels := b.Levels()
	if len(levels) != 3 {
		t.Fatalf("got %d levels, want 3", len(levels))
	}
	for i, w := range want {
		if !levels[i].Price.Equal(decimal.RequireFromString(w)) {
			t.Errorf("level %d price = %s, want %s", i, levels[i].Price, w)
		}
		if levels[i].Status != models.LevelOpen {
			t.Errorf("level %d status = %s, want open", i, levels[i].Status)
		}
	}
}

func TestBatchSwapSimultaneousTrigger(t *testing.T) {
	b := newSellLadder(t, 3, "1.0", "1.2")

	intents, warnings := b.Evaluate(time.Now(), snapAt("1.15"))
	if len(intents) != 2 {
		t.Fatalf("got %d intents, want 2", len(intents))
	}
	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(warnings))
	}
	if !strings.Contains(warnings[0], "2 levels") {
		t.Errorf("warning %q should mention 2 levels", warnings[0])
	}

	levels := b.Levels()
	if levels[0].Status != models.LevelTriggered || levels[1].Status != models.LevelTriggered {
		t.Errorf("levels 0,1 should be triggered, got %s, %s", levels[0].Status, levels[1].Status)
	}
	if levels[2].Status != models.LevelOpen {
		t.Errorf("level 2 status = %s, want open", levels[2].Status)
	}

	// Results arrive in emission order.
	b.OnResult(Result{Filled: true})
	b.OnResult(Result{Filled: true})
	levels = b.Levels()
	if levels[0].Status != models.LevelFilled || levels[1].Status != models.LevelFilled {
		t.Errorf("levels 0,1 should be filled, got %s, %s", levels[0].Status, levels[1].Status)
	}
	if done, _ := b.Done(); done {
		t.Error("ladder with an open level should not be done")
	}
}

func TestBatchSwapNeverCrossedNeverEmits(t *testing.T) {
	b := newSellLadder(t, 3, "1.0", "1.2")
	for i := 0; i < 10; i++ {
		intents, _ := b.Evaluate(time.Now(), snapAt("0.9"))
		if len(intents) != 0 {
			t.Fatalf("tick %d: sell ladder emitted below all levels", i)
		}
	}
	if done, _ := b.Done(); done {
		t.Error("untouched ladder should not be done")
	}
}

func TestBatchSwapSingleEmissionPerLevel(t *testing.T) {
	b := newSellLadder(t, 2, "1.0", "1.1")

	intents, _ := b.Evaluate(time.Now(), snapAt("1.05"))
	if len(intents) != 1 {
		t.Fatalf("got %d intents, want 1", len(intents))
	}

	// Pending result blocks further evaluation.
	if intents, _ := b.Evaluate(time.Now(), snapAt("1.05")); len(intents) != 0 {
		t.Errorf("pending ladder emitted %d intents", len(intents))
	}

	b.OnResult(Result{Err: netErr()})

	// Failed level stays triggered and never re-emits.
	if intents, _ := b.Evaluate(time.Now(), snapAt("1.05")); len(intents) != 0 {
		t.Errorf("failed level re-emitted %d intents", len(intents))
	}

	intents, _ = b.Evaluate(time.Now(), snapAt("1.2"))
	if len(intents) != 1 {
		t.Fatalf("level 1 should trigger at 1.2, got %d intents", len(intents))
	}
	b.OnResult(Result{Filled: true})

	done, why := b.Done()
	if !done {
		t.Fatal("ladder should be done with no open levels and no pending results")
	}
	if why != "completed: 1 levels filled, 1 failed" {
		t.Errorf("terminal reason = %q", why)
	}
}

func TestBatchSwapBuySideTriggersBelow(t *testing.T) {
	b := NewBatchSwap(BatchSwapConfig{
		Base:         "WBNB",
		Quote:        "USDT",
		Side:         models.SideBuy,
		TotalAmount:  decimal.RequireFromString("300"),
		AmountIsBase: false,
		MinPrice:     decimal.RequireFromString("0.8"),
		MaxPrice:     decimal.RequireFromString("1.0"),
		NumLevels:    3,
	})

	if intents, _ := b.Evaluate(time.Now(), snapAt("1.1")); len(intents) != 0 {
		t.Fatalf("buy ladder emitted above all levels: %d intents", len(intents))
	}
	intents, _ := b.Evaluate(time.Now(), snapAt("0.95"))
	if len(intents) != 1 {
		t.Fatalf("got %d intents, want 1 (only the 1.0 level crosses)", len(intents))
	}
	for _, in := range intents {
		if in.AmountIsBase {
			t.Error("buy spend should be in quote units")
		}
	}
}

func TestBatchSwapBellWeightsSumToTotal(t *testing.T) {
	weights := distributionWeights(5, "bell")
	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}
	diff := sum.Sub(decimal.NewFromInt(1)).Abs()
	if diff.GreaterThan(decimal.RequireFromString("0.000001")) {
		t.Errorf("bell weights sum = %s, want 1", sum)
	}
	// Center level carries the largest share.
	for i, w := range weights {
		if i != 2 && w.GreaterThanOrEqual(weights[2]) {
			t.Errorf("weight %d (%s) >= center weight (%s)", i, w, weights[2])
		}
	}
}
