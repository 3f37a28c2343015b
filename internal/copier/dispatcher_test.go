package copier

import (
	"context"
	"testing"

	"hedge_copier/internal/identity"
	"hedge_copier/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher() (*Dispatcher, *fakeTerminals) {
	fake := &fakeTerminals{response: models.TerminalResponse{Success: true, Status: "paused"}}

	idmap := identity.NewMap(testLogger())
	idmap.Update(map[string]string{"uuid-1": "mt5-100"})

	return NewDispatcher(idmap, fake, testLogger()), fake
}

func TestDispatchResolvesPersistentID(t *testing.T) {
	d, fake := newTestDispatcher()

	resp, err := d.Dispatch(context.Background(), "uuid-1", models.TerminalCommand{Action: models.ActionPause})
	require.NoError(t, err)
	assert.True(t, resp.Success)

	sent := fake.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "mt5-100", sent[0].TerminalID)
	assert.Equal(t, models.ActionPause, sent[0].Cmd.Action)
}

func TestDispatchAcceptsTransportID(t *testing.T) {
	d, fake := newTestDispatcher()

	_, err := d.Dispatch(context.Background(), "mt4-200", models.TerminalCommand{Action: models.ActionStatus})
	require.NoError(t, err)

	sent := fake.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "mt4-200", sent[0].TerminalID)
}

func TestDispatchRejectsUnsupportedAction(t *testing.T) {
	d, fake := newTestDispatcher()

	// OPEN_POSITION - внутреннее действие движка, снаружи не принимается
	_, err := d.Dispatch(context.Background(), "uuid-1", models.TerminalCommand{Action: models.ActionOpenPosition})
	assert.Error(t, err)
	assert.Empty(t, fake.sent())
}

func TestDispatchClosePositionRequiresID(t *testing.T) {
	d, fake := newTestDispatcher()

	_, err := d.Dispatch(context.Background(), "uuid-1", models.TerminalCommand{Action: models.ActionClosePosition})
	assert.Error(t, err)
	assert.Empty(t, fake.sent())

	_, err = d.Dispatch(context.Background(), "uuid-1", models.TerminalCommand{
		Action:     models.ActionClosePosition,
		PositionID: "7",
	})
	assert.NoError(t, err)
}
