package terminal

import (
	"context"
	"testing"
	"time"

	"hedge_copier/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileSpec(t *testing.T, id, login string) models.TerminalSpec {
	t.Helper()

	return models.TerminalSpec{
		ID:       id,
		Platform: models.PlatformMT4,
		Login:    login,
		DataDir:  t.TempDir(),
	}
}

func TestManagerConfigureIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(ctx, testOptions(), testOptions().Logger)
	defer m.Close(time.Second)

	specs := []models.TerminalSpec{
		fileSpec(t, "mt4-100", "100"),
		fileSpec(t, "mt4-200", "200"),
	}

	require.NoError(t, m.Configure(specs))
	assert.Equal(t, []string{"mt4-100", "mt4-200"}, m.TerminalIDs())

	// Повтор с тем же набором ничего не меняет
	require.NoError(t, m.Configure(specs))
	assert.Equal(t, []string{"mt4-100", "mt4-200"}, m.TerminalIDs())
}

func TestManagerConfigureRemovesMissing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(ctx, testOptions(), testOptions().Logger)
	defer m.Close(time.Second)

	first := fileSpec(t, "mt4-100", "100")
	second := fileSpec(t, "mt4-200", "200")

	require.NoError(t, m.Configure([]models.TerminalSpec{first, second}))
	require.NoError(t, m.Configure([]models.TerminalSpec{second}))

	assert.Equal(t, []string{"mt4-200"}, m.TerminalIDs())
}

func TestManagerConfigureRejectsInvalidSpec(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(ctx, testOptions(), testOptions().Logger)
	defer m.Close(time.Second)

	err := m.Configure([]models.TerminalSpec{{ID: "mt4-100", Platform: models.PlatformMT4}})
	assert.Error(t, err) // dataDir обязателен для file-транспорта
}

func TestManagerSendCommandUnknownTerminal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(ctx, testOptions(), testOptions().Logger)
	defer m.Close(time.Second)

	_, err := m.SendCommand(context.Background(), "mt5-999", models.TerminalCommand{Action: models.ActionStatus})
	assert.Error(t, err)
}
