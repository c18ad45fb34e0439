// Package decoder parses raw execution-event payloads into typed domain
// events. Decoding is pure: no chain or database access.
package decoder

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/dusaprotocol/pump-backend/internal/fraction"
)

// ErrMalformedEvent reports an event payload that cannot be decoded. The
// caller drops the event and keeps consuming.
var ErrMalformedEvent = errors.New("malformed event")

// Event payload prefixes emitted by the launch-platform contracts.
const (
	SwapEventName    = "Swap"
	NewPairEventName = "NEW_PAIR"
)

// SwapEvent is the decoded form of a pool swap event.
type SwapEvent struct {
	Caller     string
	Amount0In  *big.Int
	Amount1In  *big.Int
	Amount0Out *big.Int
	Amount1Out *big.Int
	Recipient  string
}

// NewPairEvent is the decoded form of a deployer NEW_PAIR event.
type NewPairEvent struct {
	Token0      string
	Token1      string
	PairAddress string
}

// ExtractParams strips the event name tag and returns the flat parameter
// list. Payload shape: "NAME:param1,param2,...".
func ExtractParams(data string) []string {
	if i := strings.Index(data, ":"); i >= 0 {
		data = data[i+1:]
	}
	if data == "" {
		return nil
	}
	return strings.Split(data, ",")
}

// DecodeSwapEvent decodes the 6-field swap parameter block: caller, four
// 256-bit unsigned amounts, recipient, in fixed order.
func DecodeSwapEvent(data string) (*SwapEvent, error) {
	params := ExtractParams(data)
	if len(params) < 6 {
		return nil, fmt.Errorf("%w: swap event has %d parameters, want 6", ErrMalformedEvent, len(params))
	}

	amounts := make([]*big.Int, 4)
	for i := 0; i < 4; i++ {
		n, err := fraction.ParseU256(params[i+1])
		if err != nil {
			return nil, fmt.Errorf("%w: swap amount %d: %v", ErrMalformedEvent, i, err)
		}
		amounts[i] = n
	}

	return &SwapEvent{
		Caller:     params[0],
		Amount0In:  amounts[0],
		Amount1In:  amounts[1],
		Amount0Out: amounts[2],
		Amount1Out: amounts[3],
		Recipient:  params[5],
	}, nil
}

// DecodeNewPairEvent decodes the 3-field NEW_PAIR parameter block.
func DecodeNewPairEvent(data string) (*NewPairEvent, error) {
	params := ExtractParams(data)
	if len(params) < 3 {
		return nil, fmt.Errorf("%w: NEW_PAIR event has %d parameters, want 3", ErrMalformedEvent, len(params))
	}
	for _, addr := range params[:3] {
		if !IsValidAddress(addr) {
			return nil, fmt.Errorf("%w: invalid address %q in NEW_PAIR event", ErrMalformedEvent, addr)
		}
	}
	return &NewPairEvent{
		Token0:      params[0],
		Token1:      params[1],
		PairAddress: params[2],
	}, nil
}

// IsValidAddress reports whether s looks like a Massa smart-contract or user
// address: the "AS"/"AU" prefix followed by a base58 payload.
func IsValidAddress(s string) bool {
	if len(s) < 3 {
		return false
	}
	if !strings.HasPrefix(s, "AS") && !strings.HasPrefix(s, "AU") {
		return false
	}
	_, err := base58.Decode(s[2:])
	return err == nil
}

// IsSwapMethod reports whether a target function name is one of the
// recognized pool swap entrypoints.
func IsSwapMethod(name string) bool {
	return name == "buy" || name == "sell"
}
