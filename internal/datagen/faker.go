//-------------------------------------------------------------------------
//
// pgEdge Stock ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package datagen generates test data for the relational source store.
package datagen

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// Faker provides fake data generation using gofakeit.
type Faker struct {
	faker *gofakeit.Faker
}

// NewFaker creates a new Faker with a random seed.
func NewFaker() *Faker {
	return &Faker{
		faker: gofakeit.New(uint64(time.Now().UnixNano())),
	}
}

// NewFakerWithSeed creates a new Faker with a specific seed for reproducibility.
func NewFakerWithSeed(seed uint64) *Faker {
	return &Faker{
		faker: gofakeit.New(seed),
	}
}

// Name generates a random full name.
func (f *Faker) Name() string {
	return f.faker.FirstName() + " " + f.faker.LastName()
}

// Int generates a random integer between min and max (inclusive).
func (f *Faker) Int(min, max int) int {
	return f.faker.IntRange(min, max)
}

// Int64 generates a random int64 between min and max (inclusive).
func (f *Faker) Int64(min, max int64) int64 {
	return int64(f.faker.IntRange(int(min), int(max)))
}

// Float64 generates a random float64 between min and max.
func (f *Faker) Float64(min, max float64) float64 {
	return f.faker.Float64Range(min, max)
}

// Chance returns true with probability p.
func (f *Faker) Chance(p float64) bool {
	return f.Float64(0, 1) < p
}

// RUT generates a Chilean national id with a valid check digit, formatted
// as "12345678-5".
func (f *Faker) RUT() string {
	base := f.Int(5000000, 25000000)
	return strconv.Itoa(base) + "-" + RUTCheckDigit(base)
}

// RUTCheckDigit computes the modulo 11 check digit of a RUT body: factors
// 2 to 7 cycle over the digits from the right, 11 maps to "0" and 10 to
// "K".
func RUTCheckDigit(base int) string {
	sum := 0
	factor := 2
	for n := base; n > 0; n /= 10 {
		sum += (n % 10) * factor
		factor++
		if factor > 7 {
			factor = 2
		}
	}
	switch dv := 11 - sum%11; dv {
	case 11:
		return "0"
	case 10:
		return "K"
	default:
		return strconv.Itoa(dv)
	}
}

// ValidRUT reports whether rut is "<digits>-<check digit>" with a correct
// check digit.
func ValidRUT(rut string) bool {
	body, dv, ok := strings.Cut(rut, "-")
	if !ok {
		return false
	}
	base, err := strconv.Atoi(body)
	if err != nil || base <= 0 {
		return false
	}
	return strings.ToUpper(dv) == RUTCheckDigit(base)
}

// SKUPrefix returns the upper-cased first three letters of name.
func SKUPrefix(name string) string {
	runes := []rune(strings.ReplaceAll(name, " ", ""))
	if len(runes) > 3 {
		runes = runes[:3]
	}
	return strings.ToUpper(string(runes))
}

// SKU formats a product code as "<MFR>-<CAT>-NNNN".
func SKU(manufacturer, category string, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", SKUPrefix(manufacturer), SKUPrefix(category), seq)
}

// Choose returns a random element from the given slice.
func Choose[T any](f *Faker, items []T) T {
	if len(items) == 0 {
		var zero T
		return zero
	}
	return items[f.Int(0, len(items)-1)]
}

// ChooseWeighted returns a random element based on weights.
func ChooseWeighted[T any](f *Faker, items []T, weights []int) T {
	if len(items) == 0 || len(weights) == 0 {
		var zero T
		return zero
	}

	totalWeight := 0
	for _, w := range weights {
		totalWeight += w
	}

	r := f.Int(1, totalWeight)
	cumulative := 0
	for i, w := range weights {
		cumulative += w
		if r <= cumulative {
			return items[i]
		}
	}

	return items[len(items)-1]
}
