package mailbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotLatestWins(t *testing.T) {
	s := New[int]()
	s.Publish(1)
	s.Publish(2)
	s.Publish(3)

	assert.Equal(t, 1, s.Pending())
	v, ok := s.TryTake()
	require.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = s.TryTake()
	assert.False(t, ok, "slot should be empty after take")

	stats := s.Stats()
	assert.Equal(t, uint64(3), stats.Published)
	assert.Equal(t, uint64(2), stats.Dropped)
}

func TestSlotTakeBlocksUntilPublish(t *testing.T) {
	s := New[string]()
	got := make(chan string, 1)
	go func() {
		v, err := s.Take(context.Background())
		if err == nil {
			got <- v
		}
	}()

	time.Sleep(20 * time.Millisecond)
	s.Publish("frame")

	select {
	case v := <-got:
		assert.Equal(t, "frame", v)
	case <-time.After(time.Second):
		t.Fatal("Take did not return after Publish")
	}
}

func TestSlotTakeHonorsContext(t *testing.T) {
	s := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Take(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSlotNeverHoldsMoreThanOne(t *testing.T) {
	s := New[int]()
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				s.Publish(base*1000 + i)
				if n := s.Pending(); n > 1 {
					t.Errorf("pending = %d, want <= 1", n)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Pending(), 1)
	stats := s.Stats()
	assert.Equal(t, uint64(4000), stats.Published)
	assert.Equal(t, stats.Published-uint64(s.Pending()), stats.Dropped)
}
