package domain

import "testing"

func TestMinResalePrice(t *testing.T) {
	tests := []struct {
		name        string
		acquisition int64
		want        int64
	}{
		{"round figure", 50000, 50500},
		{"rounds up, never truncates the floor", 99, 100},
		{"single cent", 1, 2},
		{"large price", 7500000, 7575000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MinResalePrice(tt.acquisition); got != tt.want {
				t.Fatalf("MinResalePrice(%d) = %d, want %d", tt.acquisition, got, tt.want)
			}
		})
	}
}

func TestResaleCommissionConservesSalePrice(t *testing.T) {
	for _, price := range []int64{100, 101, 50500, 99999, 1234567} {
		commission := ResaleCommission(price)
		proceeds := price - commission
		if commission+proceeds != price {
			t.Fatalf("commission %d + proceeds %d != price %d", commission, proceeds, price)
		}
		if commission != price/100 {
			t.Fatalf("ResaleCommission(%d) = %d, want %d", price, commission, price/100)
		}
	}
}
