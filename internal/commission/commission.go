// Package commission prices purchases by their report category.
package commission

import (
	"math"
	"strconv"
	"strings"

	"affiliate-tracking-system/internal/models"
)

const DefaultRate = 4.0

// Table maps a trimmed category name to a percentage.
type Table struct {
	rates       map[string]float64
	defaultRate float64
}

func NewTable(rates []models.CommissionRate, defaultRate float64) *Table {
	t := &Table{
		rates:       make(map[string]float64, len(rates)),
		defaultRate: defaultRate,
	}
	for _, r := range rates {
		if r.Commission == nil || !finite(*r.Commission) {
			continue
		}
		t.rates[strings.TrimSpace(r.Category)] = *r.Commission
	}
	return t
}

func (t *Table) Rate(category string) float64 {
	if rate, ok := t.rates[strings.TrimSpace(category)]; ok {
		return rate
	}
	return t.defaultRate
}

// Apply replaces each value with the commission earned on it and stamps the
// percentage used. Non-numeric values become 0.
func (t *Table) Apply(purchases []models.Purchase) []models.Purchase {
	out := make([]models.Purchase, len(purchases))
	for i, p := range purchases {
		rate := t.Rate(p.Category)
		value := float64(p.Value)
		if !finite(value) {
			value = 0
		}
		p.Commission = models.Amount(rate)
		p.Value = models.Amount(Round2(value * rate / 100))
		out[i] = p
	}
	return out
}

// Round2 rounds half away from zero to cents. The shift to cents is done on
// the shortest decimal form of v so 0.285 rounds to 0.29, not 0.28.
func Round2(v float64) float64 {
	if !finite(v) {
		return 0
	}
	str := strconv.FormatFloat(v, 'e', -1, 64)
	i := strings.LastIndexByte(str, 'e')
	exp, err := strconv.Atoi(str[i+1:])
	if err != nil {
		return math.Round(v*100) / 100
	}
	cents, err := strconv.ParseFloat(str[:i]+"e"+strconv.Itoa(exp+2), 64)
	if err != nil {
		return math.Round(v*100) / 100
	}
	return math.Round(cents) / 100
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
