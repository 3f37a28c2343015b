package copier

import (
	"sync"
	"time"

	"hedge_copier/internal/models"
)

// CircuitBreaker считает подряд идущие неудачные попытки копирования по
// каждому follower'у и после порога блокирует дальнейшую отправку ордеров.
//
// Закрывается только явным Reset оператора - автоматического half-open
// повтора нет: повтор против стабильно падающего брокерского соединения
// означал бы молчаливую многократную раскрытую позицию без хеджа.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold int
	states    map[string]*models.CircuitBreakerState // groupID+"/"+followerID
}

// NewCircuitBreaker создает предохранитель с порогом threshold
func NewCircuitBreaker(threshold int) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}

	return &CircuitBreaker{
		threshold: threshold,
		states:    make(map[string]*models.CircuitBreakerState),
	}
}

func breakerKey(groupID, followerID string) string {
	return groupID + "/" + followerID
}

// IsOpen сообщает, заблокирован ли follower
func (b *CircuitBreaker) IsOpen(groupID, followerID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.states[breakerKey(groupID, followerID)]
	return ok && st.Tripped
}

// RecordFailure фиксирует неудачу. Возвращает true, если именно эта неудача
// перевела предохранитель в открытое состояние.
func (b *CircuitBreaker) RecordFailure(groupID, followerID string) (tripped bool, failures int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := breakerKey(groupID, followerID)

	st, ok := b.states[key]
	if !ok {
		st = &models.CircuitBreakerState{GroupID: groupID, FollowerID: followerID}
		b.states[key] = st
	}

	if st.Tripped {
		return false, st.ConsecutiveFailures
	}

	st.ConsecutiveFailures++

	if st.ConsecutiveFailures >= b.threshold {
		st.Tripped = true
		st.TrippedAt = time.Now()

		return true, st.ConsecutiveFailures
	}

	return false, st.ConsecutiveFailures
}

// RecordSuccess обнуляет счётчик после удачной копии
func (b *CircuitBreaker) RecordSuccess(groupID, followerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if st, ok := b.states[breakerKey(groupID, followerID)]; ok && !st.Tripped {
		st.ConsecutiveFailures = 0
	}
}

// Reset - явный сброс оператором: закрывает предохранитель и обнуляет счётчик
func (b *CircuitBreaker) Reset(groupID, followerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := breakerKey(groupID, followerID)

	if st, ok := b.states[key]; ok {
		st.Tripped = false
		st.ConsecutiveFailures = 0
		st.TrippedAt = time.Time{}
	}
}

// State возвращает копию состояния предохранителя
func (b *CircuitBreaker) State(groupID, followerID string) models.CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if st, ok := b.states[breakerKey(groupID, followerID)]; ok {
		return *st
	}

	return models.CircuitBreakerState{GroupID: groupID, FollowerID: followerID}
}
