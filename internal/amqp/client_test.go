package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{-1, 1 * time.Second},
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
		{64, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.expected, exponentialBackoff(tt.attempt))
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"closed connection", errors.New("use of closed network connection"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"amqp closed", fmt.Errorf("consume: %w", amqp091.ErrClosed), true},
		{"other error", errors.New("invalid input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isConnectionError(tt.err))
		})
	}
}

func newTestClient() *Client {
	return &Client{
		exchangeName: "test_exchange",
		queueName:    "test_queue",
	}
}

func TestClient_CircuitBreaker(t *testing.T) {
	t.Run("initial state is closed", func(t *testing.T) {
		assert.False(t, newTestClient().isCircuitOpen())
	})

	t.Run("record success resets state", func(t *testing.T) {
		c := newTestClient()
		atomic.StoreInt64(&c.failureCount, 3)
		atomic.StoreInt32(&c.state, StateOpen)

		c.recordSuccess()

		assert.False(t, c.isCircuitOpen())
		assert.Equal(t, int64(0), atomic.LoadInt64(&c.failureCount))
		assert.Equal(t, StateClosed, atomic.LoadInt32(&c.state))
	})

	t.Run("failures past threshold open circuit", func(t *testing.T) {
		c := newTestClient()
		for i := 0; i < failureThreshold-1; i++ {
			c.recordFailure()
		}
		assert.False(t, c.isCircuitOpen())
		c.recordFailure()
		assert.True(t, c.isCircuitOpen())
	})

	t.Run("open circuit half-opens after timeout", func(t *testing.T) {
		c := newTestClient()
		atomic.StoreInt32(&c.state, StateOpen)
		c.lastFailure = time.Now().Add(-openTimeout - time.Second)

		assert.False(t, c.isCircuitOpen())
		assert.Equal(t, StateHalfOpen, atomic.LoadInt32(&c.state))

		// a failure while half-open trips it again
		c.recordFailure()
		assert.True(t, c.isCircuitOpen())
	})
}

func TestClient_Publish(t *testing.T) {
	msg := NewSnapshotChangedMessage("add", "direction", "1", 3, 10)

	t.Run("fails when circuit is open", func(t *testing.T) {
		c := newTestClient()
		atomic.StoreInt32(&c.state, StateOpen)
		c.lastFailure = time.Now()

		err := c.PublishSnapshotChanged(context.Background(), msg)
		assert.ErrorIs(t, err, ErrCircuitOpen)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		c := newTestClient()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := c.PublishSnapshotChanged(ctx, msg)
		assert.Equal(t, context.Canceled, err)
	})

	t.Run("not connected counts as failure", func(t *testing.T) {
		c := newTestClient()
		err := c.PublishSnapshotChanged(context.Background(), msg)
		require.Error(t, err)
		assert.Equal(t, int64(1), atomic.LoadInt64(&c.failureCount))
	})
}

func TestSnapshotChangedMessage(t *testing.T) {
	msg := NewSnapshotChangedMessage("edit", "element", "water", 7, 42)
	assert.Equal(t, "edit", msg.Operation)
	assert.WithinDuration(t, time.Now(), msg.Timestamp, time.Second)

	b, err := msg.ToJSON()
	require.NoError(t, err)
	parsed, err := SnapshotChangedMessageFromJSON(b)
	require.NoError(t, err)
	assert.Equal(t, msg.Category, parsed.Category)
	assert.Equal(t, msg.RecordID, parsed.RecordID)
	assert.Equal(t, msg.Version, parsed.Version)
	assert.Equal(t, msg.Records, parsed.Records)
	assert.True(t, msg.Timestamp.Equal(parsed.Timestamp))
}

func TestSnapshotChangedMessage_Invalid(t *testing.T) {
	_, err := SnapshotChangedMessageFromJSON([]byte(`{"version": "x"}`))
	assert.Error(t, err)

	_, err = SnapshotChangedMessageFromJSON([]byte(`{"version": 1}`))
	assert.Error(t, err, "operation is required")
}

func TestCloseWithoutConnection(t *testing.T) {
	assert.NoError(t, newTestClient().Close())
}

func TestConsumeSnapshotChanged_BackoffResetsAfterReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// each call: whether the consumer registered before the connection dropped
	script := []bool{false, false, true, false, true}
	var waits []time.Duration
	calls := 0

	c := newTestClient()
	c.consume = func(ctx context.Context, _ deliveryHandler, started func()) error {
		if calls == len(script) {
			cancel()
			return ctx.Err()
		}
		if script[calls] {
			started()
		}
		calls++
		return fmt.Errorf("consume: %w", amqp091.ErrClosed)
	}
	c.pause = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	err := c.ConsumeSnapshotChanged(ctx, func(context.Context, *SnapshotChangedMessage) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		1 * time.Second,
		2 * time.Second,
		1 * time.Second,
	}, waits)
}

func TestConsumeSnapshotChanged_StopsOnOtherErrors(t *testing.T) {
	boom := errors.New("queue not found")
	c := newTestClient()
	c.consume = func(context.Context, deliveryHandler, func()) error { return boom }
	c.pause = func(context.Context, time.Duration) error {
		t.Fatal("must not back off on a non-connection error")
		return nil
	}

	err := c.ConsumeSnapshotChanged(context.Background(), func(context.Context, *SnapshotChangedMessage) error { return nil })
	assert.ErrorIs(t, err, boom)
}

func TestEnsureChannelWithoutURL(t *testing.T) {
	c := newTestClient()
	_, err := c.ensureChannel()
	require.Error(t, err)
	assert.Nil(t, c.conn)
	assert.Nil(t, c.channel)
	releaseConnection(nil, nil)
}
