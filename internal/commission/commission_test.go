package commission

import (
	"math"
	"testing"

	"affiliate-tracking-system/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pct(v float64) *float64 { return &v }

func TestApply(t *testing.T) {
	table := NewTable([]models.CommissionRate{
		{Category: " Grocery & Gourmet Food ", Commission: pct(5)},
		{Category: "Electronics", Commission: nil},
	}, DefaultRate)

	tests := []struct {
		name           string
		in             models.Purchase
		wantValue      float64
		wantCommission float64
	}{
		{
			name:           "listed category",
			in:             models.Purchase{Category: "Grocery & Gourmet Food", Value: 4.96},
			wantValue:      0.25,
			wantCommission: 5,
		},
		{
			name:           "unlisted category falls back",
			in:             models.Purchase{Category: "Garden", Value: 100},
			wantValue:      4,
			wantCommission: 4,
		},
		{
			name:           "category without a rate falls back",
			in:             models.Purchase{Category: "Electronics", Value: 10},
			wantValue:      0.4,
			wantCommission: 4,
		},
		{
			name:           "non-numeric value",
			in:             models.Purchase{Category: "Garden", Value: models.Amount(math.NaN())},
			wantValue:      0,
			wantCommission: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := table.Apply([]models.Purchase{tt.in})
			require.Len(t, out, 1)
			assert.Equal(t, tt.wantValue, float64(out[0].Value))
			assert.Equal(t, tt.wantCommission, float64(out[0].Commission))
		})
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	in := []models.Purchase{{Category: "Garden", Value: 50}}
	NewTable(nil, DefaultRate).Apply(in)
	assert.Equal(t, models.Amount(50), in[0].Value)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 0.25, Round2(0.248))
	assert.Equal(t, 0.13, Round2(0.125))
	assert.Equal(t, 0.0, Round2(math.Inf(1)))
}

func TestRound2HalfCentsRoundUp(t *testing.T) {
	assert.Equal(t, 0.29, Round2(0.285))
	assert.Equal(t, 1.01, Round2(1.005))
	assert.Equal(t, -0.29, Round2(-0.285))
	assert.Equal(t, 1234.57, Round2(1234.565))
	assert.Equal(t, 0.0, Round2(0))
}

func TestApplyRoundsHalfCentCommission(t *testing.T) {
	table := NewTable([]models.CommissionRate{{Category: "Beauty", Commission: pct(3)}}, DefaultRate)
	out := table.Apply([]models.Purchase{{Category: "Beauty", Value: 9.5}})
	assert.Equal(t, models.Amount(0.29), out[0].Value)

	out = NewTable(nil, 5).Apply([]models.Purchase{{Category: "Other", Value: 4.96}})
	assert.Equal(t, models.Amount(0.25), out[0].Value)
}
