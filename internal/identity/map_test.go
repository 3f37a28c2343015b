package identity

import (
	"io"
	"log/slog"
	"testing"

	"hedge_copier/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestTransportID(t *testing.T) {
	assert.Equal(t, "mt5-12345", TransportID(models.PlatformMT5, "12345"))
	assert.Equal(t, "ctrader-acc1", TransportID(models.PlatformCTrader, "acc1"))
}

func TestMapLookups(t *testing.T) {
	m := NewMap(slog.New(slog.NewTextHandler(io.Discard, nil)))

	m.Update(map[string]string{
		"uuid-leader":   "mt5-100",
		"uuid-follower": "mt4-200",
	})

	tid, ok := m.Transport("uuid-leader")
	assert.True(t, ok)
	assert.Equal(t, "mt5-100", tid)

	pid, ok := m.Persistent("mt4-200")
	assert.True(t, ok)
	assert.Equal(t, "uuid-follower", pid)

	_, ok = m.Persistent("mt5-999")
	assert.False(t, ok)

	assert.Equal(t, 2, m.Len())
}

func TestMapUpdateReplacesContent(t *testing.T) {
	m := NewMap(slog.New(slog.NewTextHandler(io.Discard, nil)))

	m.Update(map[string]string{"uuid-a": "mt5-1"})
	m.Update(map[string]string{"uuid-a": "mt5-2"})

	tid, ok := m.Transport("uuid-a")
	assert.True(t, ok)
	assert.Equal(t, "mt5-2", tid)

	// Старый транспортный идентификатор больше не известен
	_, ok = m.Persistent("mt5-1")
	assert.False(t, ok)
}

func TestMapUpdateIsIdempotent(t *testing.T) {
	m := NewMap(slog.New(slog.NewTextHandler(io.Discard, nil)))

	accounts := map[string]string{"uuid-a": "mt5-1", "uuid-b": "ctrader-2"}
	m.Update(accounts)
	m.Update(accounts)

	assert.Equal(t, 2, m.Len())

	pid, ok := m.Persistent("ctrader-2")
	assert.True(t, ok)
	assert.Equal(t, "uuid-b", pid)
}
