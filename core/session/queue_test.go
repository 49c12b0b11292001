package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_pendingQueue_drainKeepsArrivalOrder(t *testing.T) {
	var q pendingQueue
	w1, w2, w3 := q.enqueue(), q.enqueue(), q.enqueue()
	assert.Equal(t, 3, q.len())

	ws := q.drain()
	require.Len(t, ws, 3)
	assert.Same(t, w1, ws[0])
	assert.Same(t, w2, ws[1])
	assert.Same(t, w3, ws[2])
	assert.Equal(t, 0, q.len())
	assert.Empty(t, q.drain())
}

func Test_pendingQueue_remove(t *testing.T) {
	var q pendingQueue
	w1, w2 := q.enqueue(), q.enqueue()

	q.remove(w1)
	q.remove(w1)
	assert.Equal(t, 1, q.len())
	assert.Equal(t, []*waiter{w2}, q.drain())

	q.remove(w2) // drained already
	assert.Equal(t, 0, q.len())
}

func Test_settle(t *testing.T) {
	ctx := context.Background()
	errBoom := errors.New("boom")

	tests := []struct {
		name      string
		token     string
		err       error
		wantToken string
		wantErr   error
	}{
		{name: "resolve", token: "a2", wantToken: "a2"},
		{name: "reject", err: errBoom, wantErr: errBoom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var q pendingQueue
			ws := []*waiter{q.enqueue(), q.enqueue()}
			settle(q.drain(), tt.token, tt.err)

			for _, w := range ws {
				token, err := w.wait(ctx)
				assert.Equal(t, tt.wantToken, token)
				assert.Equal(t, tt.wantErr, err)
			}
		})
	}
}

func Test_waiter_abandoned(t *testing.T) {
	var q pendingQueue
	w := q.enqueue()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := w.wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// settling an abandoned waiter must not block
	done := make(chan struct{})
	go func() {
		settle(q.drain(), "a2", nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("settle() blocked on an abandoned waiter")
	}
}
