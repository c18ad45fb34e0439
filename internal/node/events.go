package node

import (
	"context"
	"time"
)

// fetchMaxRetries is the number of re-queries performed when an operation's
// events are not yet visible. The schedule is a protocol constant; do not
// recalibrate it per deployment.
const fetchMaxRetries = 10

// FetchEvents retrieves the confirmed execution events of one operation with
// bounded, linearly increasing backoff.
//
// Semantics:
//   - zero events with retries remaining: wait (attempts so far + 1) seconds
//     and query again;
//   - retries exhausted with no events: {IsError: false, Events: nil},
//     which callers treat as "nothing to do";
//   - any event carrying the execution-error marker: {IsError: true} with
//     only the error events, short-circuiting remaining retries;
//   - transport failure: {IsError: true, Events: nil}. FetchEvents never
//     returns a Go error.
func (c *Client) FetchEvents(ctx context.Context, txID string) FetchResult {
	for retries := fetchMaxRetries; ; retries-- {
		events, err := c.getEvents(ctx, txID)
		if err != nil {
			c.logger.Error().Err(err).Str("tx", txID).Msg("Event fetch failed")
			return FetchResult{IsError: true}
		}

		if len(events) == 0 && retries > 0 {
			delay := time.Duration(fetchMaxRetries-retries+1) * time.Second
			if err := c.sleep(ctx, delay); err != nil {
				return FetchResult{IsError: true}
			}
			continue
		}

		var errorEvents []Event
		for _, e := range events {
			if e.HasExecutionError() {
				errorEvents = append(errorEvents, e)
			}
		}
		if len(errorEvents) > 0 {
			return FetchResult{IsError: true, Events: errorEvents}
		}

		return FetchResult{Events: events}
	}
}
