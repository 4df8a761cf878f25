//-------------------------------------------------------------------------
//
// pgEdge Stock ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package datagen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFakerWithSeed(t *testing.T) {
	seed := uint64(12345)
	f1 := NewFakerWithSeed(seed)
	f2 := NewFakerWithSeed(seed)

	// Same seed should produce same sequence
	for i := 0; i < 10; i++ {
		assert.Equal(t, f1.Int(0, 1000), f2.Int(0, 1000))
	}
}

func TestFakerName(t *testing.T) {
	f := NewFaker()
	assert.Contains(t, f.Name(), " ", "name should carry first and last name")
}

func TestFakerInt64(t *testing.T) {
	f := NewFaker()
	for i := 0; i < 100; i++ {
		v := f.Int64(20, 100)
		assert.GreaterOrEqual(t, v, int64(20))
		assert.LessOrEqual(t, v, int64(100))
	}
}

func TestFakerChance(t *testing.T) {
	f := NewFaker()
	for i := 0; i < 100; i++ {
		require.False(t, f.Chance(0))
		require.True(t, f.Chance(1.01))
	}
}

func TestRUTCheckDigit(t *testing.T) {
	tests := []struct {
		base int
		want string
	}{
		{12345678, "5"},
		{9876543, "3"},
		{11111111, "1"},
		{10000013, "K"},
		{10000004, "0"},
		{5000000, "1"},
		{25000000, "6"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RUTCheckDigit(tt.base), "base %d", tt.base)
	}
}

func TestValidRUT(t *testing.T) {
	tests := []struct {
		rut  string
		want bool
	}{
		{"12345678-5", true},
		{"10000013-K", true},
		{"10000013-k", true},
		{"10000004-0", true},
		{"12345678-4", false},
		{"12345678", false},
		{"abc-5", false},
		{"-5", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidRUT(tt.rut), tt.rut)
	}
}

func TestFakerRUT(t *testing.T) {
	f := NewFakerWithSeed(7)
	for i := 0; i < 200; i++ {
		rut := f.RUT()
		require.True(t, ValidRUT(rut), rut)
	}
}

func TestSKU(t *testing.T) {
	tests := []struct {
		manufacturer string
		category     string
		seq          int
		want         string
	}{
		{"Mobil", "Aceites", 1, "MOB-ACE-0001"},
		{"Liqui Moly", "Aditivos", 12, "LIQ-ADI-0012"},
		{"ACDelco", "Baterías", 345, "ACD-BAT-0345"},
		{"Fram", "Amortiguadores", 9999, "FRA-AMO-9999"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SKU(tt.manufacturer, tt.category, tt.seq))
	}
}

func TestSKUPrefixShortName(t *testing.T) {
	assert.Equal(t, "AB", SKUPrefix("Ab"))
}

func TestChoose(t *testing.T) {
	f := NewFaker()
	items := []string{"a", "b", "c", "d", "e"}

	for i := 0; i < 100; i++ {
		assert.Contains(t, items, Choose(f, items))
	}
}

func TestChooseEmpty(t *testing.T) {
	f := NewFaker()
	var items []string

	assert.Empty(t, Choose(f, items))
}

func TestChooseWeighted(t *testing.T) {
	f := NewFaker()
	items := []string{"a", "b", "c"}
	weights := []int{1, 2, 7} // c should be chosen ~70% of the time

	counts := make(map[string]int)
	iterations := 1000

	for i := 0; i < iterations; i++ {
		chosen := ChooseWeighted(f, items, weights)
		counts[chosen]++
	}

	// c should be most common
	assert.Greater(t, counts["c"], counts["a"], counts)
	assert.Greater(t, counts["c"], counts["b"], counts)
}

func TestChooseWeightedEmpty(t *testing.T) {
	f := NewFaker()
	var items []string
	var weights []int

	assert.Empty(t, ChooseWeighted(f, items, weights))
}

func BenchmarkFakerRUT(b *testing.B) {
	f := NewFaker()
	for i := 0; i < b.N; i++ {
		_ = f.RUT()
	}
}

func BenchmarkChooseWeighted(b *testing.B) {
	f := NewFaker()
	items := []int{1, 2, 3, 4}
	weights := []int{50, 30, 15, 5}
	for i := 0; i < b.N; i++ {
		_ = ChooseWeighted(f, items, weights)
	}
}
