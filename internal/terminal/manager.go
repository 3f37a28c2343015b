package terminal

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"hedge_copier/internal/models"

	"golang.org/x/sync/errgroup"
)

// Snapshot - снапшот, помеченный транспортным идентификатором терминала
type Snapshot struct {
	TerminalID string
	models.AccountSnapshot
}

// Manager владеет адаптерами терминалов: по одной горутине на соединение,
// общий выходной канал снапшотов, маршрутизация команд по terminalID.
type Manager struct {
	ctx    context.Context
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	adapters map[string]*managedAdapter

	out chan Snapshot
}

type managedAdapter struct {
	adapter Adapter
	cancel  context.CancelFunc
}

// NewManager создает менеджер. ctx ограничивает жизнь всех соединений.
func NewManager(ctx context.Context, opts Options, logger *slog.Logger) *Manager {
	return &Manager{
		ctx:      ctx,
		opts:     opts,
		logger:   logger,
		adapters: make(map[string]*managedAdapter),
		out:      make(chan Snapshot, 64),
	}
}

// Out возвращает общий поток снапшотов всех терминалов.
// Порядок в пределах одного терминала сохраняется.
func (m *Manager) Out() <-chan Snapshot {
	return m.out
}

// Configure приводит набор соединений к переданному списку терминалов:
// новые подключаются, исчезнувшие закрываются, существующие не трогаются.
// Идемпотентно.
func (m *Manager) Configure(specs []models.TerminalSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[string]models.TerminalSpec, len(specs))
	for _, spec := range specs {
		want[spec.ID] = spec
	}

	for id, ma := range m.adapters {
		if _, keep := want[id]; !keep {
			ma.cancel()
			_ = ma.adapter.Close()
			delete(m.adapters, id)

			m.logger.Info("Terminal removed", slog.String("terminal", id))
		}
	}

	for id, spec := range want {
		if _, exists := m.adapters[id]; exists {
			continue
		}

		if err := m.addLocked(spec); err != nil {
			return fmt.Errorf("failed to add terminal %s: %w", id, err)
		}
	}

	return nil
}

func (m *Manager) addLocked(spec models.TerminalSpec) error {
	adapter, err := NewAdapter(spec, m.opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(m.ctx)

	snapshots, err := adapter.Snapshots(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start snapshot stream: %w", err)
	}

	m.adapters[spec.ID] = &managedAdapter{adapter: adapter, cancel: cancel}

	go func() {
		for snap := range snapshots {
			select {
			case m.out <- Snapshot{TerminalID: spec.ID, AccountSnapshot: snap}:
			case <-ctx.Done():
				return
			}
		}
	}()

	m.logger.Info("Terminal added",
		slog.String("terminal", spec.ID),
		slog.String("platform", string(spec.Platform)))

	return nil
}

// TerminalIDs возвращает идентификаторы настроенных терминалов
func (m *Manager) TerminalIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.adapters))
	for id := range m.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

// SendCommand маршрутизирует команду нужному терминалу
func (m *Manager) SendCommand(ctx context.Context, terminalID string, cmd models.TerminalCommand) (models.TerminalResponse, error) {
	m.mu.RLock()
	ma, ok := m.adapters[terminalID]
	m.mu.RUnlock()

	if !ok {
		return models.TerminalResponse{}, fmt.Errorf("unknown terminal: %s", terminalID)
	}

	return ma.adapter.SendCommand(ctx, cmd)
}

// Close закрывает все соединения параллельно с коротким grace-периодом.
// Команды в полёте завершаются или таймаутятся сами - принудительно их не
// обрываем, чтобы не оставить состояние ордера follower'а неоднозначным.
func (m *Manager) Close(grace time.Duration) error {
	m.mu.Lock()
	adapters := m.adapters
	m.adapters = make(map[string]*managedAdapter)
	m.mu.Unlock()

	var g errgroup.Group

	for id, ma := range adapters {
		id, ma := id, ma
		g.Go(func() error {
			ma.cancel()

			done := make(chan error, 1)
			go func() { done <- ma.adapter.Close() }()

			select {
			case err := <-done:
				if err != nil {
					return fmt.Errorf("failed to close terminal %s: %w", id, err)
				}
				return nil
			case <-time.After(grace):
				m.logger.Warn("Terminal close exceeded grace period", slog.String("terminal", id))
				return nil
			}
		})
	}

	return g.Wait()
}
