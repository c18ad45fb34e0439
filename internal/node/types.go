package node

import (
	"strings"
	"time"
)

// ExecutionErrorMarker tags event payloads produced by a failed
// smart-contract execution.
const ExecutionErrorMarker = "massa_execution_error"

// Slot is a logical position in the ledger's block sequence.
type Slot struct {
	Period uint64 `json:"period"`
	Thread uint32 `json:"thread"`
}

// Time maps the slot to wall-clock time: one period every 16 seconds from
// the genesis timestamp, threads spaced half a second apart inside a period.
func (s Slot) Time(genesisMs int64) time.Time {
	ms := genesisMs + int64(s.Period)*16_000 + int64(s.Thread)*500
	return time.UnixMilli(ms)
}

// Event is a confirmed smart-contract execution event.
type Event struct {
	Data              string
	CallStack         []string
	OriginOperationID string
	Slot              Slot
	IndexInSlot       uint64
	IsError           bool
	IsFinal           bool
}

// Callee returns the deepest contract in the event's call stack, the one
// that emitted the event.
func (e Event) Callee() string {
	if len(e.CallStack) == 0 {
		return ""
	}
	return e.CallStack[len(e.CallStack)-1]
}

// HasExecutionError reports whether the payload carries the node's
// execution-error marker.
func (e Event) HasExecutionError() bool {
	return strings.Contains(e.Data, ExecutionErrorMarker)
}

// FetchResult is the outcome of the confirmed-event fetch protocol.
type FetchResult struct {
	IsError bool
	Events  []Event
}

// FilledBlock is one item of the node's block stream: a produced block with
// the operations it contains.
type FilledBlock struct {
	BlockID    string
	Slot       Slot
	Operations []SignedOperation
}

// SignedOperation is an operation included in a filled block. CallSC is nil
// for operation kinds other than smart-contract calls.
type SignedOperation struct {
	Hash           string
	CreatorAddress string
	CallSC         *CallSC
}

// CallSC is the contract-call payload of an operation.
type CallSC struct {
	TargetAddress  string
	TargetFunction string
	Parameter      []byte
	Coins          uint64
}

// ContractCall is an outbound signed smart-contract call.
type ContractCall struct {
	Target    string
	Function  string
	Parameter []byte
	Coins     uint64
	Fee       uint64
	MaxGas    uint64
}

// Wire shapes, converted to the domain types above after decoding.

type wireFilledBlock struct {
	Header struct {
		ID      string `json:"id"`
		Content struct {
			Slot Slot `json:"slot"`
		} `json:"content"`
	} `json:"header"`
	Operations []wireOperation `json:"operations"`
}

type wireOperation struct {
	ID                    string `json:"id"`
	ContentCreatorAddress string `json:"content_creator_address"`
	Content               struct {
		Op struct {
			CallSC *struct {
				TargetAddr string `json:"target_addr"`
				TargetFunc string `json:"target_func"`
				Param      []byte `json:"param"`
				Coins      uint64 `json:"coins"`
			} `json:"CallSC"`
		} `json:"op"`
	} `json:"content"`
}

type wireEvent struct {
	Data    string `json:"data"`
	Context struct {
		Slot              Slot     `json:"slot"`
		CallStack         []string `json:"call_stack"`
		IndexInSlot       uint64   `json:"index_in_slot"`
		OriginOperationID *string  `json:"origin_operation_id"`
		IsError           bool     `json:"is_error"`
		IsFinal           bool     `json:"is_final"`
	} `json:"context"`
}

func (b wireFilledBlock) toDomain() FilledBlock {
	ops := make([]SignedOperation, 0, len(b.Operations))
	for _, op := range b.Operations {
		domain := SignedOperation{
			Hash:           op.ID,
			CreatorAddress: op.ContentCreatorAddress,
		}
		if call := op.Content.Op.CallSC; call != nil {
			domain.CallSC = &CallSC{
				TargetAddress:  call.TargetAddr,
				TargetFunction: call.TargetFunc,
				Parameter:      call.Param,
				Coins:          call.Coins,
			}
		}
		ops = append(ops, domain)
	}
	return FilledBlock{
		BlockID:    b.Header.ID,
		Slot:       b.Header.Content.Slot,
		Operations: ops,
	}
}

func (e wireEvent) toDomain() Event {
	ev := Event{
		Data:        e.Data,
		CallStack:   e.Context.CallStack,
		Slot:        e.Context.Slot,
		IndexInSlot: e.Context.IndexInSlot,
		IsError:     e.Context.IsError,
		IsFinal:     e.Context.IsFinal,
	}
	if e.Context.OriginOperationID != nil {
		ev.OriginOperationID = *e.Context.OriginOperationID
	}
	return ev
}
