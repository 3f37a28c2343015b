package copier

import (
	"testing"

	"hedge_copier/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestMatchMagic(t *testing.T) {
	tests := []struct {
		name      string
		whitelist []int64
		blacklist []int64
		magic     int64
		want      bool
	}{
		{"no filters", nil, nil, 777, true},
		{"whitelist hit", []int64{777}, nil, 777, true},
		{"whitelist miss", []int64{111}, nil, 777, false},
		{"blacklist hit", nil, []int64{777}, 777, false},
		{"blacklist wins over whitelist", []int64{777}, []int64{777}, 777, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := models.FollowerConfig{MagicWhitelist: tc.whitelist, MagicBlacklist: tc.blacklist}
			assert.Equal(t, tc.want, matchMagic(f, tc.magic))
		})
	}
}

func TestMatchSymbol(t *testing.T) {
	tests := []struct {
		name      string
		whitelist []string
		blacklist []string
		symbol    string
		want      bool
	}{
		{"no filters", nil, nil, "EURUSD", true},
		{"whitelist hit", []string{"EURUSD"}, nil, "EURUSD", true},
		{"whitelist miss", []string{"GBPUSD"}, nil, "EURUSD", false},
		{"blacklist hit", nil, []string{"EURUSD"}, "EURUSD", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := models.FollowerConfig{SymbolWhitelist: tc.whitelist, SymbolBlacklist: tc.blacklist}
			assert.Equal(t, tc.want, matchSymbol(f, tc.symbol))
		})
	}
}

func TestResolveSymbol(t *testing.T) {
	group := models.CopierGroup{LeaderSuffixStrip: ".pro"}

	t.Run("suffix strip plus follower suffix", func(t *testing.T) {
		f := models.FollowerConfig{SymbolSuffix: ".m"}
		symbol, override := resolveSymbol(group, f, "EURUSD.pro")
		assert.Equal(t, "EURUSD.m", symbol)
		assert.Zero(t, override)
	})

	t.Run("alias wins over suffix", func(t *testing.T) {
		f := models.FollowerConfig{
			SymbolSuffix: ".m",
			SymbolAliases: []models.SymbolAlias{
				{MasterSymbol: "XAUUSD", SlaveSymbol: "GOLD", LotMultiplier: 0.1},
			},
		}
		symbol, override := resolveSymbol(group, f, "XAUUSD.pro")
		assert.Equal(t, "GOLD", symbol)
		assert.Equal(t, 0.1, override)
	})

	t.Run("no suffix configured", func(t *testing.T) {
		symbol, override := resolveSymbol(models.CopierGroup{}, models.FollowerConfig{}, "EURUSD")
		assert.Equal(t, "EURUSD", symbol)
		assert.Zero(t, override)
	})
}

func TestComputeVolume(t *testing.T) {
	tests := []struct {
		name        string
		eventVolume float64
		multiplier  float64
		override    float64
		lotStep     float64
		want        float64
	}{
		{"plain multiplier", 1.0, 0.5, 0, 0, 0.5},
		{"alias override wins", 1.0, 0.5, 2.0, 0, 2.0},
		{"rounds to lot step", 1.0, 0.33, 0, 0.1, 0.3},
		{"bumps to min step", 0.01, 0.1, 0, 0.01, 0.01},
		{"custom lot step", 1.0, 0.25, 0, 0.05, 0.25},
		{"binary noise flattened", 0.3, 0.1, 0, 0.01, 0.03},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := models.FollowerConfig{LotMultiplier: tc.multiplier, LotStep: tc.lotStep}
			assert.InDelta(t, tc.want, computeVolume(tc.eventVolume, f, tc.override), 1e-9)
		})
	}
}

func TestMapSide(t *testing.T) {
	assert.Equal(t, models.SideBuy, mapSide(models.SideBuy, false))
	assert.Equal(t, models.SideSell, mapSide(models.SideBuy, true))
	assert.Equal(t, models.SideBuy, mapSide(models.SideSell, true))
}

func TestMapStops(t *testing.T) {
	sl, tp := mapStops(1.05, 1.15, false)
	assert.Equal(t, 1.05, sl)
	assert.Equal(t, 1.15, tp)

	// Hedge-режим: стоп зеркала там, где у исходной был тейк
	sl, tp = mapStops(1.05, 1.15, true)
	assert.Equal(t, 1.15, sl)
	assert.Equal(t, 1.05, tp)
}
