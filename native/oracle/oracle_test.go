package oracle

import (
	"errors"
	"testing"

	"moneymarket/core/exp"
	"moneymarket/crypto"
)

func TestStaticOracle(t *testing.T) {
	admin := crypto.BytesToAddress([]byte{0x01})
	o := NewStaticOracle(admin)

	price, err := o.UnderlyingPrice("usdc")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if !price.IsZero() {
		t.Fatalf("unposted asset must be unpriced, got %s", price.Dec())
	}

	if err := o.SetPrice(crypto.BytesToAddress([]byte{0x02}), "USDC", exp.MustMantissa("1")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := o.SetPrice(admin, "usdc", exp.MustMantissa("1.01")); err != nil {
		t.Fatalf("set price: %v", err)
	}
	price, err = o.UnderlyingPrice(" USDC ")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.Cmp(exp.MustMantissa("1.01")) != 0 {
		t.Fatalf("unexpected price: %s", price.Dec())
	}

	if err := o.SetPrice(admin, "Native", exp.New(5)); err != nil {
		t.Fatalf("set native: %v", err)
	}
	native, _ := o.UnderlyingPrice(NativeAsset)
	if native.Cmp(exp.Scale()) != 0 {
		t.Fatalf("native asset must stay pinned, got %s", native.Dec())
	}
	if len(o.Prices()) != 2 {
		t.Fatalf("unexpected price table: %v", o.Prices())
	}
}
