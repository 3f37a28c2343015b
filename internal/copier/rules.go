package copier

import (
	"math"
	"slices"
	"strings"

	"hedge_copier/internal/models"
)

// Правила отображения сделки leader'а в команду follower'у. Порядок применения
// фиксирован: magic-фильтр → symbol-фильтр → разрешение символа → объём →
// направление.

// matchMagic: отказ, если magic в чёрном списке, либо белый список непуст и
// magic в него не входит
func matchMagic(f models.FollowerConfig, magic int64) bool {
	if slices.Contains(f.MagicBlacklist, magic) {
		return false
	}

	if len(f.MagicWhitelist) > 0 && !slices.Contains(f.MagicWhitelist, magic) {
		return false
	}

	return true
}

// matchSymbol применяет white/blacklist к исходному символу leader'а
func matchSymbol(f models.FollowerConfig, symbol string) bool {
	if slices.Contains(f.SymbolBlacklist, symbol) {
		return false
	}

	if len(f.SymbolWhitelist) > 0 && !slices.Contains(f.SymbolWhitelist, symbol) {
		return false
	}

	return true
}

// resolveSymbol переводит символ leader'а в символ follower'а:
// срезаем суффикс leader'а, ищем alias; если alias нет - добавляем суффикс
// follower'а. Возвращает также per-symbol переопределение множителя (0 = нет).
func resolveSymbol(group models.CopierGroup, f models.FollowerConfig, leaderSymbol string) (string, float64) {
	base := leaderSymbol
	if group.LeaderSuffixStrip != "" {
		base = strings.TrimSuffix(base, group.LeaderSuffixStrip)
	}

	for _, alias := range f.SymbolAliases {
		if alias.MasterSymbol == base {
			return alias.SlaveSymbol, alias.LotMultiplier
		}
	}

	return base + f.SymbolSuffix, 0
}

// computeVolume считает объём follower'а: event.volume × множитель
// (переопределение alias'а имеет приоритет), округление к шагу лота брокера
func computeVolume(eventVolume float64, f models.FollowerConfig, override float64) float64 {
	mult := f.LotMultiplier
	if override > 0 {
		mult = override
	}

	return roundToLotStep(eventVolume*mult, f.LotStep)
}

func roundToLotStep(volume, step float64) float64 {
	if step <= 0 {
		step = 0.01
	}

	rounded := math.Round(volume/step) * step
	if rounded < step && volume > 0 {
		rounded = step
	}

	// Гасим бинарный шум после деления/умножения
	return math.Round(rounded*1e8) / 1e8
}

// mapSide выбирает направление: hedge-режим открывает противоположное
func mapSide(side models.Side, reverse bool) models.Side {
	if reverse {
		return side.Opposite()
	}

	return side
}
