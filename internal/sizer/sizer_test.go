package sizer

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/chidi150c/perpexec/internal/coreerr"
	"github.com/chidi150c/perpexec/internal/types"
)

func spec() types.Instrument {
	return types.Instrument{
		Symbol:       "BTC-USDT-SWAP",
		ContractSize: decimal.NewFromFloat(0.01),
		MinSize:      1,
	}
}

func TestSize_QuoteUnit(t *testing.T) {
	// 1000 quote / (50000 price * 0.01 contract size) = 2 contracts.
	contracts, err := Size(spec(), decimal.NewFromInt(1000), types.UnitQuote, decimal.NewFromInt(50000), Options{})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), contracts)
}

func TestSize_BaseUnit(t *testing.T) {
	// 0.05 base / 0.01 contract size = 5 contracts.
	contracts, err := Size(spec(), decimal.NewFromFloat(0.05), types.UnitBase, decimal.Zero, Options{})
	assert.NoError(t, err)
	assert.Equal(t, int64(5), contracts)
}

func TestSize_ContractUnit(t *testing.T) {
	contracts, err := Size(spec(), decimal.NewFromInt(3), types.UnitContract, decimal.Zero, Options{})
	assert.NoError(t, err)
	assert.Equal(t, int64(3), contracts)
}

func TestSize_TruncatesTowardZero(t *testing.T) {
	// 0.019 / 0.01 = 1.9 -> truncates to 1, never rounds to 2.
	contracts, err := Size(spec(), decimal.NewFromFloat(0.019), types.UnitBase, decimal.Zero, Options{})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), contracts)
}

func TestSize_BelowMinSizeFailsByDefault(t *testing.T) {
	s := spec()
	s.MinSize = 10
	_, err := Size(s, decimal.NewFromInt(3), types.UnitContract, decimal.Zero, Options{})
	assert.True(t, coreerr.Is(err, coreerr.SizeTooSmall))
}

func TestSize_BelowMinSizeRoundsUpWhenConfigured(t *testing.T) {
	s := spec()
	s.MinSize = 10
	contracts, err := Size(s, decimal.NewFromInt(3), types.UnitContract, decimal.Zero, Options{RoundUpToMinSize: true})
	assert.NoError(t, err)
	assert.Equal(t, int64(10), contracts)
}

func TestSize_NonPositiveRequestedRejected(t *testing.T) {
	_, err := Size(spec(), decimal.Zero, types.UnitContract, decimal.Zero, Options{})
	assert.True(t, coreerr.Is(err, coreerr.InvalidSignal))
}

func TestSize_QuoteUnitRequiresReferencePrice(t *testing.T) {
	_, err := Size(spec(), decimal.NewFromInt(1000), types.UnitQuote, decimal.Zero, Options{})
	assert.True(t, coreerr.Is(err, coreerr.InvalidSignal))
}
