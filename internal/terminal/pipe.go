package terminal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"hedge_copier/internal/models"

	"github.com/google/uuid"
)

// pipeAdapter - streaming-транспорт для cTrader поверх named pipes.
//
// Основной pipe несёт поток снапшотов (JSON, по строке на сообщение),
// второй pipe с суффиксом "_cmd" - синхронный командный канал.
//
// При разрыве соединения адаптер входит в цикл переподключения с
// фиксированным интервалом. Локальной буферизации нет: события за время
// разрыва теряются на уровне адаптера и восстанавливаются differencer'ом,
// потому что первый же снапшот после переподключения несёт полное текущее
// состояние, а не дельту.
type pipeAdapter struct {
	spec   models.TerminalSpec
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}

	cmdMu sync.Mutex
}

func newPipeAdapter(spec models.TerminalSpec, opts Options) *pipeAdapter {
	opts = opts.withDefaults()

	return &pipeAdapter{
		spec:   spec,
		opts:   opts,
		logger: opts.Logger.With(slog.String("terminal", spec.ID)),
	}
}

func (a *pipeAdapter) TerminalID() string        { return a.spec.ID }
func (a *pipeAdapter) Platform() models.Platform { return a.spec.Platform }

func (a *pipeAdapter) Snapshots(ctx context.Context) (<-chan models.AccountSnapshot, error) {
	ctx, cancel := context.WithCancel(ctx)

	a.mu.Lock()
	a.cancel = cancel
	a.done = make(chan struct{})
	a.mu.Unlock()

	out := make(chan models.AccountSnapshot, 16)

	go a.streamLoop(ctx, out)

	return out, nil
}

func (a *pipeAdapter) streamLoop(ctx context.Context, out chan<- models.AccountSnapshot) {
	defer close(out)
	defer close(a.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := dialPipe(ctx, a.spec.PipeName, a.opts.CommandTimeout)
		if err != nil {
			a.markDisconnected(err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(a.opts.ReconnectInterval):
			}
			continue
		}

		a.markConnected()
		a.readStream(ctx, conn, out)
	}
}

// readStream читает снапшоты до разрыва соединения или отмены контекста
func (a *pipeAdapter) readStream(ctx context.Context, conn net.Conn, out chan<- models.AccountSnapshot) {
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close() // разблокировать Read при остановке
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var snap models.AccountSnapshot
		if err := json.Unmarshal(line, &snap); err != nil {
			a.logger.Error("Failed to parse pipe message", slog.Any("error", err))
			continue
		}

		select {
		case out <- snap:
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		a.markDisconnected(err)
	} else {
		a.markDisconnected(io.EOF)
	}
}

// Переходы состояния логируются один раз: reconnect-шторм не должен
// порождать дубликаты "connected"-уведомлений
func (a *pipeAdapter) markConnected() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.connected {
		a.connected = true
		a.logger.Info("Terminal connected (pipe transport)", slog.String("pipe", a.spec.PipeName))
	}
}

func (a *pipeAdapter) markDisconnected(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connected {
		a.connected = false
		a.logger.Warn("Terminal disconnected (pipe transport)", slog.Any("error", err))
	}
}

// SendCommand отправляет команду по отдельному командному pipe и ждёт одну
// строку ответа. Соединение короткоживущее: одна команда - одно подключение.
func (a *pipeAdapter) SendCommand(ctx context.Context, cmd models.TerminalCommand) (models.TerminalResponse, error) {
	a.cmdMu.Lock()
	defer a.cmdMu.Unlock()

	if cmd.RequestID == "" {
		cmd.RequestID = uuid.NewString()
	}

	cmdCtx, cancel := context.WithTimeout(ctx, a.opts.CommandTimeout)
	defer cancel()

	conn, err := dialPipe(cmdCtx, a.spec.PipeName+"_cmd", a.opts.CommandTimeout)
	if err != nil {
		return models.TerminalResponse{}, fmt.Errorf("failed to open command pipe: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(a.opts.CommandTimeout)
	_ = conn.SetDeadline(deadline)

	data, err := json.Marshal(cmd)
	if err != nil {
		return models.TerminalResponse{}, fmt.Errorf("failed to marshal command: %w", err)
	}

	if _, err := conn.Write(append(data, '\n')); err != nil {
		return models.TerminalResponse{}, fmt.Errorf("failed to write command: %w", err)
	}

	reader := bufio.NewReader(conn)

	line, err := reader.ReadBytes('\n')
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return models.TerminalResponse{}, ErrCommandTimeout
		}
		return models.TerminalResponse{}, fmt.Errorf("failed to read command response: %w", err)
	}

	var resp models.TerminalResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return models.TerminalResponse{}, fmt.Errorf("failed to parse command response: %w", err)
	}

	return resp, nil
}

func (a *pipeAdapter) Close() error {
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
