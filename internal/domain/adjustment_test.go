package domain_test

import (
	"errors"
	"testing"

	"github.com/ordenio/pedidos/internal/domain"
)

func TestStockAdjustment_Validate(t *testing.T) {
	cases := []struct {
		name string
		adj  domain.StockAdjustment
		want error
	}{
		{
			name: "ok",
			adj:  domain.StockAdjustment{ProductID: 1, Quantity: 2},
			want: nil,
		},
		{
			name: "missing product",
			adj:  domain.StockAdjustment{Quantity: 2},
			want: domain.ErrAdjustmentProductRequired,
		},
		{
			name: "zero quantity",
			adj:  domain.StockAdjustment{ProductID: 1},
			want: domain.ErrAdjustmentQuantityInvalid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.adj.Validate()
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestStockAdjustment_Invert(t *testing.T) {
	reserve := domain.StockAdjustment{ProductID: 7, Quantity: 3, Release: false}
	release := reserve.Invert()

	if release.ProductID != 7 || release.Quantity != 3 || !release.Release {
		t.Fatalf("unexpected inverted adjustment: %+v", release)
	}
	if got := release.Invert(); got != reserve {
		t.Fatalf("double invert must be identity, got %+v", got)
	}
}
