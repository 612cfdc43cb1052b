package amm

import (
	"errors"
	"math/big"
	"testing"
)

func wei(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), priceScale)
}

func TestGetAmountOutConstantProduct(t *testing.T) {
	out, err := getAmountOut(wei(1000), wei(100_000), wei(1000), 30)
	if err != nil {
		t.Fatalf("getAmountOut failed: %v", err)
	}
	expected, _ := new(big.Int).SetString("9871580343970612988", 10)
	if out.Cmp(expected) != 0 {
		t.Fatalf("expected %s, got %s", expected, out)
	}
}

func TestGetAmountOutZeroFee(t *testing.T) {
	out, err := getAmountOut(wei(1000), wei(100_000), wei(1000), 0)
	if err != nil {
		t.Fatalf("getAmountOut failed: %v", err)
	}
	// 1000*1000/101000 scaled: the zero-fee quote always exceeds the fee-bearing one.
	withFee, _ := getAmountOut(wei(1000), wei(100_000), wei(1000), 30)
	if out.Cmp(withFee) <= 0 {
		t.Fatalf("zero-fee output %s should exceed fee-bearing output %s", out, withFee)
	}
}

func TestGetAmountOutBoundedByReserve(t *testing.T) {
	// Even an absurdly large input never drains the pool.
	out, err := getAmountOut(wei(1_000_000_000), wei(100), wei(100), 30)
	if err != nil {
		t.Fatalf("getAmountOut failed: %v", err)
	}
	if out.Cmp(wei(100)) >= 0 {
		t.Fatalf("output %s must stay strictly below reserveOut", out)
	}
}

func TestGetAmountOutRejectsDust(t *testing.T) {
	if _, err := getAmountOut(big.NewInt(1), wei(100_000), wei(1), 30); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestGetAmountOutRejectsNonPositive(t *testing.T) {
	if _, err := getAmountOut(big.NewInt(0), wei(1), wei(1), 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero input, got %v", err)
	}
	if _, err := getAmountOut(nil, wei(1), wei(1), 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for nil input, got %v", err)
	}
}

func TestFeeFor(t *testing.T) {
	fee := feeFor(wei(1000), 30)
	if fee.Cmp(wei(3)) != 0 {
		t.Fatalf("expected 3 NGN fee, got %s", fee)
	}
	if feeFor(wei(1000), 0).Sign() != 0 {
		t.Fatalf("zero fee rate must charge nothing")
	}
}

func TestPriceImpactMatchesPoolDepth(t *testing.T) {
	out, err := getAmountOut(wei(1000), wei(100_000), wei(1000), 30)
	if err != nil {
		t.Fatalf("getAmountOut failed: %v", err)
	}
	impact := priceImpactBps(wei(1000), out, wei(100_000), wei(1000), 30)
	if impact != 98 {
		t.Fatalf("expected 98 bps impact, got %d", impact)
	}
}

func TestPriceImpactGrowsWithSize(t *testing.T) {
	small, _ := getAmountOut(wei(100), wei(100_000), wei(1000), 30)
	large, _ := getAmountOut(wei(20_000), wei(100_000), wei(1000), 30)
	smallImpact := priceImpactBps(wei(100), small, wei(100_000), wei(1000), 30)
	largeImpact := priceImpactBps(wei(20_000), large, wei(100_000), wei(1000), 30)
	if largeImpact <= smallImpact {
		t.Fatalf("impact must grow with trade size: %d vs %d", smallImpact, largeImpact)
	}
	if largeImpact != 1662 {
		t.Fatalf("expected 1662 bps for the deep trade, got %d", largeImpact)
	}
}

func TestSpotPrice(t *testing.T) {
	price, err := spotPrice(wei(100_000), wei(1000))
	if err != nil {
		t.Fatalf("spotPrice failed: %v", err)
	}
	if price.Cmp(wei(100)) != 0 {
		t.Fatalf("expected 100 NGN per stock, got %s", price)
	}
	if _, err := spotPrice(wei(100_000), big.NewInt(0)); !errors.Is(err, ErrPairInactive) {
		t.Fatalf("expected ErrPairInactive on zero stock reserve, got %v", err)
	}
}

func TestSqrtBig(t *testing.T) {
	product := new(big.Int).Mul(wei(100_000), wei(1000))
	root := sqrtBig(product)
	if root.Cmp(wei(10_000)) != 0 {
		t.Fatalf("expected 10000e18 shares, got %s", root)
	}
	if sqrtBig(nil).Sign() != 0 || sqrtBig(big.NewInt(-4)).Sign() != 0 {
		t.Fatalf("sqrt of nil/negative must be zero")
	}
}
