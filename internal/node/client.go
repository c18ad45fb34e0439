// Package node implements the Massa public-API client the indexer depends
// on: the filled-block stream subscription, confirmed-event queries,
// datastore reads and signed operation submission.
package node

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dusaprotocol/pump-backend/internal/config"
)

// Client talks to a Massa node over JSON-RPC (request/response) and
// websocket (block stream).
type Client struct {
	cfg    config.NodeConfig
	http   *http.Client
	signer *Signer
	logger zerolog.Logger

	requestID atomic.Uint64

	// Injectable seams for deterministic tests.
	sleep     func(ctx context.Context, d time.Duration) error
	getEvents func(ctx context.Context, txID string) ([]Event, error)
}

// NewClient creates a node client. The signer may be nil; submitting
// operations then fails with a configuration error.
func NewClient(cfg config.NodeConfig, signer *Signer, logger zerolog.Logger) *Client {
	c := &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		signer: signer,
		logger: logger.With().Str("component", "node-client").Logger(),
		sleep:  sleepCtx,
	}
	c.getEvents = c.fetchEventsOnce
	return c
}

// GenesisTimestamp returns the configured genesis anchor in unix ms.
func (c *Client) GenesisTimestamp() int64 {
	return c.cfg.GenesisTimestamp
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RPCEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: %w", method, rpcResp.Error)
	}
	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal %s result: %w", method, err)
		}
	}
	return nil
}

// fetchEventsOnce queries confirmed execution events originated by one
// operation.
func (c *Client) fetchEventsOnce(ctx context.Context, txID string) ([]Event, error) {
	filter := map[string]any{
		"original_operation_id": txID,
	}
	var wire []wireEvent
	if err := c.call(ctx, "get_filtered_sc_output_event", []any{filter}, &wire); err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(wire))
	for _, e := range wire {
		events = append(events, e.toDomain())
	}
	return events, nil
}

type datastoreQuery struct {
	Address string `json:"address"`
	Key     []byte `json:"key"`
}

type datastoreEntry struct {
	FinalValue []byte `json:"final_value"`
}

// DatastoreEntries reads named contract-state keys. A missing key yields a
// nil slice element; callers decide whether that is an error.
func (c *Client) DatastoreEntries(ctx context.Context, address string, keys []string) ([][]byte, error) {
	queries := make([]datastoreQuery, 0, len(keys))
	for _, key := range keys {
		queries = append(queries, datastoreQuery{Address: address, Key: []byte(key)})
	}

	var entries []datastoreEntry
	if err := c.call(ctx, "get_datastore_entries", [][]datastoreQuery{queries}, &entries); err != nil {
		return nil, err
	}
	if len(entries) != len(keys) {
		return nil, fmt.Errorf("datastore read on %s: got %d entries, want %d", address, len(entries), len(keys))
	}

	values := make([][]byte, len(entries))
	for i, e := range entries {
		values[i] = e.FinalValue
	}
	return values, nil
}

// CallContract signs and submits a smart-contract call, returning the
// operation id.
func (c *Client) CallContract(ctx context.Context, call ContractCall) (string, error) {
	if c.signer == nil {
		return "", fmt.Errorf("no signing key configured")
	}

	payload := serializeCall(call)

	// The signature covers the chain id so an operation cannot be replayed
	// on another network.
	signed := make([]byte, 8, 8+len(payload))
	binary.BigEndian.PutUint64(signed, c.cfg.ChainID)
	signed = append(signed, payload...)
	signature := c.signer.Sign(signed)

	op := map[string]any{
		"creator_public_key": c.signer.PublicKey(),
		"signature":          signature,
		"serialized_content": payload,
	}

	var opIDs []string
	if err := c.call(ctx, "send_operations", [][]map[string]any{{op}}, &opIDs); err != nil {
		return "", fmt.Errorf("send operation: %w", err)
	}
	if len(opIDs) == 0 {
		return "", fmt.Errorf("send operation: node returned no operation id")
	}

	c.logger.Debug().
		Str("target", call.Target).
		Str("function", call.Function).
		Str("operation", opIDs[0]).
		Msg("Operation submitted")

	return opIDs[0], nil
}

// AwaitFinal polls the node until the operation reaches final status or the
// context expires. A finalized failed execution returns an error.
func (c *Client) AwaitFinal(ctx context.Context, opID string) error {
	type opStatus struct {
		IsOperationFinal *bool `json:"is_operation_final"`
		OpExecStatus     *bool `json:"op_exec_status"`
	}

	for {
		var statuses []opStatus
		if err := c.call(ctx, "get_operations", [][]string{{opID}}, &statuses); err != nil {
			return fmt.Errorf("poll operation %s: %w", opID, err)
		}
		if len(statuses) > 0 && statuses[0].IsOperationFinal != nil && *statuses[0].IsOperationFinal {
			if statuses[0].OpExecStatus != nil && !*statuses[0].OpExecStatus {
				return fmt.Errorf("operation %s failed on-chain", opID)
			}
			return nil
		}
		if err := c.sleep(ctx, time.Second); err != nil {
			return err
		}
	}
}

// SubscribeFilledBlocks opens the node's filled-block stream. The returned
// channel closes when the stream drops; the consumer re-subscribes.
func (c *Client) SubscribeFilledBlocks(ctx context.Context) (<-chan FilledBlock, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.WSEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial block stream: %w", err)
	}

	sub := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  "subscribe_new_filled_blocks",
		Params:  []any{},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe block stream: %w", err)
	}

	c.logger.Info().Str("endpoint", c.cfg.WSEndpoint).Msg("Subscribed to filled blocks")

	blocks := make(chan FilledBlock)
	go func() {
		defer close(blocks)
		defer conn.Close()

		// Unblock ReadMessage when the context ends.
		go func() {
			<-ctx.Done()
			conn.Close()
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Warn().Err(err).Msg("Block stream closed")
				}
				return
			}

			var notification struct {
				Params struct {
					Result wireFilledBlock `json:"result"`
				} `json:"params"`
			}
			if err := json.Unmarshal(msg, &notification); err != nil {
				c.logger.Warn().Err(err).Msg("Skipping undecodable stream message")
				continue
			}
			if notification.Params.Result.Header.ID == "" {
				// Subscription acknowledgement or keepalive.
				continue
			}

			select {
			case blocks <- notification.Params.Result.toDomain():
			case <-ctx.Done():
				return
			}
		}
	}()

	return blocks, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
