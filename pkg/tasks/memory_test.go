package tasks

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_FIFOAndDrainOnClose(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(10)
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(ctx, IngestTask{DocID: fmt.Sprintf("d%d", i)}))
	}
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	var seen []string
	err := q.Consume(ctx, func(_ context.Context, task IngestTask) error {
		seen = append(seen, task.DocID)
		if task.DocID == "d2" {
			return errors.New("handler failure does not stop the loop")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"d0", "d1", "d2", "d3", "d4"}, seen)

	assert.ErrorIs(t, q.Enqueue(ctx, IngestTask{DocID: "late"}), ErrQueueClosed)
}

func TestMemoryQueue_ConsumeStopsOnContextCancel(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, func(context.Context, IngestTask) error { return nil })
	}()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestMemoryQueue_EnqueueRespectsContextWhenFull(t *testing.T) {
	q := NewMemoryQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), IngestTask{DocID: "a"}))
	assert.Equal(t, 1, q.Len())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Enqueue(ctx, IngestTask{DocID: "b"}), context.DeadlineExceeded)
}
