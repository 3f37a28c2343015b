package copier

import (
	"fmt"
	"testing"
	"time"

	"hedge_copier/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatorActivityRing(t *testing.T) {
	a := NewAggregator(nil, testLogger())

	for i := 0; i < activityRingSize+50; i++ {
		a.Activity(models.ActivityEntry{ID: fmt.Sprintf("e%d", i), Timestamp: time.Now()})
	}

	log := a.ActivityLog(0)
	assert.Len(t, log, activityRingSize)
	// Свежие первыми
	assert.Equal(t, fmt.Sprintf("e%d", activityRingSize+49), log[0].ID)
}

func TestAggregatorActivityLogLimit(t *testing.T) {
	a := NewAggregator(nil, testLogger())

	for i := 0; i < 10; i++ {
		a.Activity(models.ActivityEntry{ID: fmt.Sprintf("e%d", i)})
	}

	assert.Len(t, a.ActivityLog(3), 3)
	assert.Len(t, a.ActivityLog(100), 10)
}

func TestAggregatorSubscribeReceivesEvents(t *testing.T) {
	a := NewAggregator(nil, testLogger())

	ch, unsubscribe := a.Subscribe()
	defer unsubscribe()

	a.Activity(models.ActivityEntry{ID: "e1", GroupID: "g1"})

	select {
	case ev := <-ch:
		assert.Equal(t, models.EventActivity, ev.Kind)
		require.NotNil(t, ev.Activity)
		assert.Equal(t, "e1", ev.Activity.ID)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	a.Alert(models.EventCircuitBreaker, "g1", "f1", "tripped")

	select {
	case ev := <-ch:
		assert.Equal(t, models.EventCircuitBreaker, ev.Kind)
		assert.Equal(t, "tripped", ev.Message)
	case <-time.After(time.Second):
		t.Fatal("no alert received")
	}
}

func TestAggregatorSlowSubscriberDoesNotBlock(t *testing.T) {
	a := NewAggregator(nil, testLogger())

	ch, unsubscribe := a.Subscribe()
	defer unsubscribe()

	// Переполняем буфер подписчика, ничего не читая: публикация не должна виснуть
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			a.Alert(models.EventCopyError, "g1", "f1", fmt.Sprintf("m%d", i))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked by slow subscriber")
	}

	// Старые события вытеснены, самое свежее дошло
	var last models.CopierEvent
	for {
		select {
		case ev := <-ch:
			last = ev
			continue
		default:
		}
		break
	}
	assert.Equal(t, "m499", last.Message)
}

func TestAggregatorUnsubscribeClosesChannel(t *testing.T) {
	a := NewAggregator(nil, testLogger())

	ch, unsubscribe := a.Subscribe()
	unsubscribe()

	_, open := <-ch
	assert.False(t, open)

	// Повторная отписка безопасна
	unsubscribe()
}

type memActivityStore struct {
	entries []models.ActivityEntry
}

func (s *memActivityStore) AddActivity(entry models.ActivityEntry, keep int) error {
	s.entries = append([]models.ActivityEntry{entry}, s.entries...)
	if len(s.entries) > keep {
		s.entries = s.entries[:keep]
	}
	return nil
}

func (s *memActivityStore) RecentActivity(limit int) ([]models.ActivityEntry, error) {
	if limit > len(s.entries) {
		limit = len(s.entries)
	}
	return s.entries[:limit], nil
}

func TestAggregatorRestoresFromStore(t *testing.T) {
	store := &memActivityStore{}

	a := NewAggregator(store, testLogger())
	a.Activity(models.ActivityEntry{ID: "e1"})
	a.Activity(models.ActivityEntry{ID: "e2"})

	restarted := NewAggregator(store, testLogger())
	log := restarted.ActivityLog(0)
	require.Len(t, log, 2)
	assert.Equal(t, "e2", log[0].ID)
}
