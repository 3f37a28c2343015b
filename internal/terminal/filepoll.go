package terminal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"hedge_copier/internal/models"

	"github.com/google/uuid"
)

// Имена файлов обмена в data-каталоге терминала. Снапшот пишет EA,
// команды пишем мы, ответ снова пишет EA.
const (
	snapshotFile = "snapshot.json"
	commandFile  = "command.json"
	responseFile = "response.json"
)

// filePollAdapter - polling-транспорт для платформ с файловым обменом (MT4/MT5).
// Периодически читает snapshot-файл; файл старше StaleAfter трактуется как
// отключение терминала.
type filePollAdapter struct {
	spec   models.TerminalSpec
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}

	cmdMu sync.Mutex // команды строго по одной: файловый канал не мультиплексируется
}

func newFilePollAdapter(spec models.TerminalSpec, opts Options) *filePollAdapter {
	opts = opts.withDefaults()

	return &filePollAdapter{
		spec:   spec,
		opts:   opts,
		logger: opts.Logger.With(slog.String("terminal", spec.ID)),
	}
}

func (a *filePollAdapter) TerminalID() string        { return a.spec.ID }
func (a *filePollAdapter) Platform() models.Platform { return a.spec.Platform }

func (a *filePollAdapter) Snapshots(ctx context.Context) (<-chan models.AccountSnapshot, error) {
	ctx, cancel := context.WithCancel(ctx)

	a.mu.Lock()
	a.cancel = cancel
	a.done = make(chan struct{})
	a.mu.Unlock()

	out := make(chan models.AccountSnapshot, 16)

	go a.pollLoop(ctx, out)

	return out, nil
}

func (a *filePollAdapter) pollLoop(ctx context.Context, out chan<- models.AccountSnapshot) {
	defer close(out)
	defer close(a.done)

	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	path := filepath.Join(a.spec.DataDir, snapshotFile)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap, err := a.readSnapshot(path)
		if err != nil {
			a.markDisconnected(err)
			continue
		}

		a.markConnected()

		select {
		case out <- snap:
		case <-ctx.Done():
			return
		}
	}
}

func (a *filePollAdapter) readSnapshot(path string) (models.AccountSnapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.AccountSnapshot{}, fmt.Errorf("failed to stat snapshot file: %w", err)
	}

	if time.Since(info.ModTime()) > a.opts.StaleAfter {
		return models.AccountSnapshot{}, fmt.Errorf("snapshot file is stale (age %s)", time.Since(info.ModTime()).Round(time.Second))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.AccountSnapshot{}, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap models.AccountSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.AccountSnapshot{}, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	return snap, nil
}

// markConnected/markDisconnected логируют только переходы состояния,
// чтобы не заспамить лог при длительном простое терминала
func (a *filePollAdapter) markConnected() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.connected {
		a.connected = true
		a.logger.Info("Terminal connected (file transport)")
	}
}

func (a *filePollAdapter) markDisconnected(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connected {
		a.connected = false
		a.logger.Warn("Terminal disconnected (file transport)", slog.Any("error", err))
	}
}

// SendCommand пишет команду в command-файл и ждёт ответ с тем же requestId
// в response-файле. Ожидание ограничено CommandTimeout.
func (a *filePollAdapter) SendCommand(ctx context.Context, cmd models.TerminalCommand) (models.TerminalResponse, error) {
	a.cmdMu.Lock()
	defer a.cmdMu.Unlock()

	if cmd.RequestID == "" {
		cmd.RequestID = uuid.NewString()
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return models.TerminalResponse{}, fmt.Errorf("failed to marshal command: %w", err)
	}

	cmdPath := filepath.Join(a.spec.DataDir, commandFile)
	respPath := filepath.Join(a.spec.DataDir, responseFile)

	// Старый ответ не должен быть принят за свежий
	_ = os.Remove(respPath)

	if err := os.WriteFile(cmdPath, data, 0o644); err != nil {
		return models.TerminalResponse{}, fmt.Errorf("failed to write command file: %w", err)
	}

	deadline := time.NewTimer(a.opts.CommandTimeout)
	defer deadline.Stop()

	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return models.TerminalResponse{}, ctx.Err()
		case <-deadline.C:
			return models.TerminalResponse{}, ErrCommandTimeout
		case <-poll.C:
		}

		raw, err := os.ReadFile(respPath)
		if err != nil {
			continue
		}

		var resp models.TerminalResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			continue // EA может писать файл не атомарно, дочитаем на следующем тике
		}

		if resp.RequestID != "" && resp.RequestID != cmd.RequestID {
			continue
		}

		_ = os.Remove(respPath)

		return resp, nil
	}
}

func (a *filePollAdapter) Close() error {
	a.mu.Lock()
	cancel := a.cancel
	done := a.done
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	return nil
}
