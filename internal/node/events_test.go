package node

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusaprotocol/pump-backend/internal/config"
)

func newTestClient() *Client {
	return NewClient(config.NodeConfig{RequestTimeout: time.Second}, nil, zerolog.Nop())
}

func TestFetchEventsExhaustsRetries(t *testing.T) {
	c := newTestClient()

	queries := 0
	c.getEvents = func(ctx context.Context, txID string) ([]Event, error) {
		queries++
		return nil, nil
	}

	var waits []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	res := c.FetchEvents(context.Background(), "O1")
	assert.False(t, res.IsError)
	assert.Empty(t, res.Events)

	// Exactly 10 retries after the initial query, with strictly
	// increasing waits of 1s..10s.
	assert.Equal(t, 11, queries)
	require.Len(t, waits, 10)
	for i, d := range waits {
		assert.Equal(t, time.Duration(i+1)*time.Second, d)
	}
}

func TestFetchEventsErrorMarkerShortCircuits(t *testing.T) {
	c := newTestClient()

	queries := 0
	c.getEvents = func(ctx context.Context, txID string) ([]Event, error) {
		queries++
		return []Event{
			{Data: "Swap:a,1,0,0,2,b"},
			{Data: ExecutionErrorMarker + ": out of coins"},
		}, nil
	}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		t.Fatal("should not wait once events are visible")
		return nil
	}

	res := c.FetchEvents(context.Background(), "O1")
	assert.True(t, res.IsError)
	require.Len(t, res.Events, 1, "only the error events are returned")
	assert.Contains(t, res.Events[0].Data, ExecutionErrorMarker)
	assert.Equal(t, 1, queries)
}

func TestFetchEventsReturnsAfterLateArrival(t *testing.T) {
	c := newTestClient()

	queries := 0
	c.getEvents = func(ctx context.Context, txID string) ([]Event, error) {
		queries++
		if queries < 3 {
			return nil, nil
		}
		return []Event{{Data: "Swap:a,1,0,0,2,b", OriginOperationID: txID}}, nil
	}
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	res := c.FetchEvents(context.Background(), "O1")
	assert.False(t, res.IsError)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "O1", res.Events[0].OriginOperationID)
	assert.Equal(t, 3, queries)
}

func TestFetchEventsTransportFailure(t *testing.T) {
	c := newTestClient()

	c.getEvents = func(ctx context.Context, txID string) ([]Event, error) {
		return nil, errors.New("connection refused")
	}

	res := c.FetchEvents(context.Background(), "O1")
	assert.True(t, res.IsError)
	assert.Empty(t, res.Events)
}

func TestFetchEventsCancelledContext(t *testing.T) {
	c := newTestClient()

	c.getEvents = func(ctx context.Context, txID string) ([]Event, error) {
		return nil, nil
	}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	res := c.FetchEvents(context.Background(), "O1")
	assert.True(t, res.IsError)
}
