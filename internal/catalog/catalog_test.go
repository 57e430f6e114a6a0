package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCategory(t *testing.T) {
	assert.NoError(t, ValidateCategory("Sacs", "Pochettes"))
	assert.NoError(t, ValidateCategory("Montres", ""))
	assert.ErrorIs(t, ValidateCategory("Voitures", ""), ErrUnknownCategory)
	assert.ErrorIs(t, ValidateCategory("Sacs", "Escarpins"), ErrUnknownSubcategory)
}

func TestResolveBrand(t *testing.T) {
	b, err := ResolveBrand("Hermès", "ignored")
	require.NoError(t, err)
	assert.Equal(t, "Hermès", b)

	b, err = ResolveBrand(BrandOther, "  Goyard ")
	require.NoError(t, err)
	assert.Equal(t, "Goyard", b)

	_, err = ResolveBrand(BrandOther, " ")
	assert.ErrorIs(t, err, ErrMissingCustomBrand)

	_, err = ResolveBrand("Zara", "")
	assert.ErrorIs(t, err, ErrUnknownBrand)
}

func TestConditions(t *testing.T) {
	assert.NoError(t, ValidateCondition(ConditionVeryGood))
	assert.ErrorIs(t, ValidateCondition("mint"), ErrUnknownCondition)
	assert.Equal(t, "Très bon état", ConditionLabel(ConditionVeryGood))
	assert.Equal(t, "mint", ConditionLabel("mint"))
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		ok       bool
	}{
		{StatusPublished, StatusPaused, true},
		{StatusPaused, StatusActive, true},
		{StatusActive, StatusSold, true},
		{StatusDraft, StatusPublished, true},
		{StatusSold, StatusSold, true},
		{StatusSold, StatusActive, false},
		{StatusPublished, StatusDraft, false},
		{StatusPublished, "archived", false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			err := CanTransition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateInitialStatus(t *testing.T) {
	for _, st := range InitialStatuses {
		assert.NoError(t, ValidateInitialStatus(st))
	}
	assert.ErrorIs(t, ValidateInitialStatus(StatusSold), ErrInvalidInitial)
	assert.ErrorIs(t, ValidateInitialStatus(StatusPaused), ErrInvalidInitial)
	assert.ErrorIs(t, ValidateInitialStatus("archived"), ErrUnknownStatus)
}

func TestConvertPrice(t *testing.T) {
	p := ConvertPrice(45_000_000)
	assert.Equal(t, int64(45_000_000), p.UZS)
	assert.InDelta(t, 3600.0, p.USD, 0.001)
	assert.InDelta(t, 3330.0, p.EUR, 0.001)

	assert.InDelta(t, 0.01, ConvertPrice(125).USD, 0.0001)
}
