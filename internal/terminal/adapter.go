// Package terminal нормализует разнородный ввод-вывод терминалов
// (файловый обмен MT4/MT5, named pipes cTrader) в единый интерфейс:
// поток снапшотов аккаунта плюс синхронный командный канал.
//
// Потеря соединения влияет только на видимость и доставку команд: терминал
// продолжает работать автономно, открытые позиции адаптер никогда не трогает.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hedge_copier/internal/models"
)

var (
	// ErrCommandTimeout - команда не получила ответ за отведённое время.
	// Отличается от прочих ошибок транспорта: таймаут никогда не глотается молча.
	ErrCommandTimeout = errors.New("terminal command timed out")

	// ErrNotConnected - транспорт сейчас не подключён
	ErrNotConnected = errors.New("terminal not connected")

	// ErrPipeUnsupported - named pipes недоступны на этой платформе
	ErrPipeUnsupported = errors.New("named pipes are not supported on this platform")
)

// Adapter - единый контракт транспорта терминала
type Adapter interface {
	// TerminalID возвращает транспортный идентификатор {platform}-{login}
	TerminalID() string

	// Platform возвращает тип терминала
	Platform() models.Platform

	// Snapshots запускает транспорт и возвращает канал снапшотов.
	// Канал закрывается при отмене контекста.
	Snapshots(ctx context.Context) (<-chan models.AccountSnapshot, error)

	// SendCommand синхронно отправляет команду терминалу. Ожидание ответа
	// ограничено таймаутом транспорта; ErrCommandTimeout при превышении.
	SendCommand(ctx context.Context, cmd models.TerminalCommand) (models.TerminalResponse, error)

	// Close останавливает транспорт и освобождает ресурсы
	Close() error
}

// NewAdapter выбирает транспорт по описанию терминала
func NewAdapter(spec models.TerminalSpec, opts Options) (Adapter, error) {
	switch spec.Platform {
	case models.PlatformMT4, models.PlatformMT5:
		if spec.DataDir == "" {
			return nil, fmt.Errorf("terminal %s: dataDir is required for %s", spec.ID, spec.Platform)
		}
		return newFilePollAdapter(spec, opts), nil
	case models.PlatformCTrader:
		if spec.PipeName == "" {
			return nil, fmt.Errorf("terminal %s: pipeName is required for ctrader", spec.ID)
		}
		return newPipeAdapter(spec, opts), nil
	default:
		return nil, fmt.Errorf("unknown platform: %q", spec.Platform)
	}
}

// Options - общие настройки транспортов
type Options struct {
	PollInterval      time.Duration // интервал чтения snapshot-файла
	StaleAfter        time.Duration // возраст файла, после которого терминал считается отключённым
	ReconnectInterval time.Duration // фиксированный интервал переподключения pipe
	CommandTimeout    time.Duration // таймаут командного канала
	Logger            *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 10 * time.Second
	}
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = 3 * time.Second
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 3 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
