// Package identity поддерживает соответствие между постоянным идентификатором
// аккаунта (UUID) и транспортным идентификатором терминала ({platform}-{login}).
//
// Карта обновляется идемпотентно при каждом изменении набора известных
// аккаунтов, поэтому переподключение или повторная детекция терминала не
// "осиротляет" существующие группы.
package identity

import (
	"fmt"
	"log/slog"
	"sync"

	"hedge_copier/internal/models"
)

// TransportID собирает транспортный идентификатор терминала
func TransportID(platform models.Platform, login string) string {
	return fmt.Sprintf("%s-%s", platform, login)
}

// Map - двунаправленная карта идентификаторов. Потокобезопасна.
type Map struct {
	mu           sync.RWMutex
	byPersistent map[string]string // uuid → transportID
	byTransport  map[string]string // transportID → uuid
	logger       *slog.Logger
}

// NewMap создает пустую карту идентификаторов
func NewMap(logger *slog.Logger) *Map {
	return &Map{
		byPersistent: make(map[string]string),
		byTransport:  make(map[string]string),
		logger:       logger,
	}
}

// Update полностью заменяет содержимое карты. Идемпотентно.
func (m *Map) Update(persistentToTransport map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byPersistent = make(map[string]string, len(persistentToTransport))
	m.byTransport = make(map[string]string, len(persistentToTransport))

	for pid, tid := range persistentToTransport {
		m.byPersistent[pid] = tid
		m.byTransport[tid] = pid
	}

	m.logger.Debug("Account identity map updated", slog.Int("accounts", len(persistentToTransport)))
}

// Transport возвращает транспортный идентификатор по постоянному
func (m *Map) Transport(persistentID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tid, ok := m.byPersistent[persistentID]
	return tid, ok
}

// Persistent возвращает постоянный идентификатор по транспортному.
// Промах не фатален: события неизвестных терминалов логируются и отбрасываются
// на стороне вызывающего.
func (m *Map) Persistent(transportID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pid, ok := m.byTransport[transportID]
	return pid, ok
}

// Len возвращает число известных аккаунтов
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.byPersistent)
}
