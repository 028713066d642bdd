package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDivHalfEven(t *testing.T) {
	tests := []struct {
		name  string
		a, b  string
		scale int32
		want  string
	}{
		{"tie rounds down to even", "1", "8", 2, "0.12"},
		{"tie rounds up to even", "3", "8", 2, "0.38"},
		{"tie at five eighths", "5", "8", 2, "0.62"},
		{"above half", "2", "3", 2, "0.67"},
		{"below half", "1", "3", 8, "0.33333333"},
		{"exact", "3", "4", 2, "0.75"},
		{"negative tie to even", "-1", "8", 2, "-0.12"},
		{"negative tie away to even", "-3", "8", 2, "-0.38"},
		{"negative divisor", "1", "-8", 2, "-0.12"},
		{"negative above half", "-2", "3", 2, "-0.67"},
		{"both negative", "-2", "-3", 2, "0.67"},
		{"zero dividend", "0", "7", 8, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DivHalfEven(d(tt.a), d(tt.b), tt.scale)
			assert.Truef(t, d(tt.want).Equal(got), "%s/%s at %d: want %s, got %s", tt.a, tt.b, tt.scale, tt.want, got)
		})
	}
}

func TestDivFloor(t *testing.T) {
	tests := []struct {
		name  string
		a, b  string
		scale int32
		want  string
	}{
		{"positive truncates", "1", "3", 8, "0.33333333"},
		{"positive never rounds up", "2", "3", 8, "0.66666666"},
		{"negative goes toward minus infinity", "-1", "3", 8, "-0.33333334"},
		{"negative divisor", "1", "-3", 8, "-0.33333334"},
		{"both negative", "-1", "-3", 8, "0.33333333"},
		{"exact negative", "-6", "3", 8, "-2"},
		{"ratio below one", "0.989", "1", 8, "0.989"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DivFloor(d(tt.a), d(tt.b), tt.scale)
			assert.Truef(t, d(tt.want).Equal(got), "%s/%s at %d: want %s, got %s", tt.a, tt.b, tt.scale, tt.want, got)
		})
	}
}

func TestMulHalfEven(t *testing.T) {
	assert.Equal(t, "0.12", MulHalfEven(d("0.125"), d("1"), 2).String())
	assert.Equal(t, "0.14", MulHalfEven(d("0.135"), d("1"), 2).String())
	assert.Equal(t, "0.076845", MulHalfEven(d("0.05123"), d("1.5"), Scale).String())
}
