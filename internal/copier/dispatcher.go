package copier

import (
	"context"
	"fmt"
	"log/slog"

	"hedge_copier/internal/identity"
	"hedge_copier/internal/models"
)

// Dispatcher маршрутизирует внешние управляющие команды
// (PAUSE/RESUME/CLOSE_ALL/CLOSE_POSITION/STATUS) нужному терминалу.
//
// PAUSE/RESUME влияют только на новые решения о зеркалировании - уже
// открытые позиции они не трогают.
type Dispatcher struct {
	idmap     *identity.Map
	terminals TerminalChannel
	logger    *slog.Logger
}

// NewDispatcher создает диспетчер команд
func NewDispatcher(idmap *identity.Map, terminals TerminalChannel, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		idmap:     idmap,
		terminals: terminals,
		logger:    logger,
	}
}

var controlActions = map[models.CommandAction]bool{
	models.ActionPause:         true,
	models.ActionResume:        true,
	models.ActionCloseAll:      true,
	models.ActionClosePosition: true,
	models.ActionStatus:        true,
}

// Dispatch разрешает целевой терминал через identity map и пересылает команду.
// accountID может быть постоянным UUID или сразу транспортным идентификатором.
func (d *Dispatcher) Dispatch(ctx context.Context, accountID string, cmd models.TerminalCommand) (models.TerminalResponse, error) {
	if !controlActions[cmd.Action] {
		return models.TerminalResponse{}, fmt.Errorf("unsupported control action: %q", cmd.Action)
	}

	if cmd.Action == models.ActionClosePosition && cmd.PositionID == "" {
		return models.TerminalResponse{}, fmt.Errorf("positionId is required for CLOSE_POSITION")
	}

	terminalID := accountID
	if tid, ok := d.idmap.Transport(accountID); ok {
		terminalID = tid
	}

	d.logger.Info("Dispatching control command",
		slog.String("terminal", terminalID),
		slog.String("action", string(cmd.Action)))

	resp, err := d.terminals.SendCommand(ctx, terminalID, cmd)
	if err != nil {
		return models.TerminalResponse{}, fmt.Errorf("failed to dispatch %s to %s: %w", cmd.Action, terminalID, err)
	}

	return resp, nil
}
