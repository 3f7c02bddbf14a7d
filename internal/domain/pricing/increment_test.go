package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrementForDefaultTiers(t *testing.T) {
	policy, err := NewIncrementPolicy(DefaultTiers)
	require.NoError(t, err)

	tests := []struct {
		name       string
		priceCents int64
		want       int64
	}{
		{"below first boundary", 100, 100},
		{"just under second tier", 2499, 100},
		{"exactly on tier floor", 2500, 200},
		{"inside mid tier", 6000, 300},
		{"on 7500 floor", 7500, 500},
		{"on 10000 floor", 10000, 1000},
		{"deep in top tier", 99900, 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.IncrementFor(tt.priceCents))
		})
	}
}

func TestIncrementMonotonicity(t *testing.T) {
	policy, err := NewIncrementPolicy(DefaultTiers)
	require.NoError(t, err)

	prev := int64(0)
	for price := int64(0); price <= 60000; price += 50 {
		inc := policy.IncrementFor(price)
		assert.GreaterOrEqual(t, inc, prev, "increment shrank at price %d", price)
		prev = inc
	}
}

func TestMinimumToBeat(t *testing.T) {
	policy, err := NewIncrementPolicy(DefaultTiers)
	require.NoError(t, err)

	assert.Equal(t, int64(5300), policy.MinimumToBeat(5000))
	assert.Equal(t, int64(2600), policy.MinimumToBeat(2400))
	assert.Equal(t, int64(55000), policy.MinimumToBeat(50000))
}

func TestNewIncrementPolicyValidation(t *testing.T) {
	tests := []struct {
		name  string
		tiers []Tier
	}{
		{"empty", nil},
		{"first floor not zero", []Tier{{FloorCents: 100, IncrementCents: 100}}},
		{"non-positive increment", []Tier{{FloorCents: 0, IncrementCents: 0}}},
		{"duplicate floor", []Tier{
			{FloorCents: 0, IncrementCents: 100},
			{FloorCents: 0, IncrementCents: 200},
		}},
		{"decreasing increment", []Tier{
			{FloorCents: 0, IncrementCents: 200},
			{FloorCents: 1000, IncrementCents: 100},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIncrementPolicy(tt.tiers)
			assert.Error(t, err)
		})
	}
}

func TestParseTiers(t *testing.T) {
	tiers, err := ParseTiers("0:100, 2500:200, 5000:300")
	require.NoError(t, err)
	require.Len(t, tiers, 3)
	assert.Equal(t, Tier{FloorCents: 2500, IncrementCents: 200}, tiers[1])

	_, err = ParseTiers("0:100,bogus")
	assert.Error(t, err)

	_, err = ParseTiers("0")
	assert.Error(t, err)
}

func TestIsWholeUnit(t *testing.T) {
	assert.True(t, IsWholeUnit(100))
	assert.True(t, IsWholeUnit(5000))
	assert.False(t, IsWholeUnit(5050))
	assert.False(t, IsWholeUnit(99))
	assert.False(t, IsWholeUnit(0))
	assert.False(t, IsWholeUnit(-100))
}
