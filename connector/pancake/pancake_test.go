package pancake

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestQuantizeTruncates(t *testing.T) {
	tests := []struct {
		amount   string
		decimals uint8
		want     string
	}{
		{"1.23456789", 6, "1.234567"},
		{"1.999999999999999999999", 18, "1.999999999999999999"},
		{"5", 18, "5"},
		{"0.0000001", 6, "0"},
	}
	for _, tt := range tests {
		got := quantize(decimal.RequireFromString(tt.amount), tt.decimals)
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("quantize(%s, %d) = %s, want %s", tt.amount, tt.decimals, got, tt.want)
		}
	}
}

func TestWeiRoundTrip(t *testing.T) {
	amount := decimal.RequireFromString("1.5")
	wei := toWei(amount, 18)
	if wei.String() != "1500000000000000000" {
		t.Fatalf("toWei = %s", wei)
	}
	back := fromWei(wei, 18)
	if !back.Equal(amount) {
		t.Errorf("fromWei(toWei(x)) = %s, want %s", back, amount)
	}
}

func TestApplySlippage(t *testing.T) {
	out := big.NewInt(10000)
	if got := applySlippage(out, 50); got.Cmp(big.NewInt(9950)) != 0 {
		t.Errorf("50 bps on 10000 = %s, want 9950", got)
	}
	if got := applySlippage(out, 0); got.Cmp(out) != 0 {
		t.Errorf("0 bps should leave the amount unchanged, got %s", got)
	}
	if out.Cmp(big.NewInt(10000)) != 0 {
		t.Error("applySlippage must not mutate its input")
	}
}

func TestMevGasPremium(t *testing.T) {
	price := big.NewInt(1000000000)
	if got := mulRat(price, mevGasPremium); got.Cmp(big.NewInt(1200000000)) != 0 {
		t.Errorf("premium price = %s, want 1200000000", got)
	}
}
