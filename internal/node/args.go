package node

import (
	"bytes"
	"encoding/binary"
	"math/big"
)

// Args serializes smart-contract call parameters in the Massa ABI layout:
// little-endian scalars, length-prefixed strings.
type Args struct {
	buf bytes.Buffer
}

func NewArgs() *Args {
	return &Args{}
}

func (a *Args) AddString(s string) *Args {
	a.AddU32(uint32(len(s)))
	a.buf.WriteString(s)
	return a
}

func (a *Args) AddU32(v uint32) *Args {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	a.buf.Write(b[:])
	return a
}

func (a *Args) AddU64(v uint64) *Args {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	a.buf.Write(b[:])
	return a
}

func (a *Args) AddU256(v *big.Int) *Args {
	a.buf.Write(U256Bytes(v))
	return a
}

func (a *Args) AddBool(v bool) *Args {
	if v {
		a.buf.WriteByte(1)
	} else {
		a.buf.WriteByte(0)
	}
	return a
}

// AddU64Slice writes a length-prefixed array of u64 values.
func (a *Args) AddU64Slice(vs []uint64) *Args {
	a.AddU32(uint32(len(vs) * 8))
	for _, v := range vs {
		a.AddU64(v)
	}
	return a
}

// AddU256Slice writes a length-prefixed array of u256 values.
func (a *Args) AddU256Slice(vs []*big.Int) *Args {
	a.AddU32(uint32(len(vs) * 32))
	for _, v := range vs {
		a.AddU256(v)
	}
	return a
}

// AddI64Slice writes a length-prefixed array of signed 64-bit values.
func (a *Args) AddI64Slice(vs []int64) *Args {
	a.AddU32(uint32(len(vs) * 8))
	for _, v := range vs {
		a.AddU64(uint64(v))
	}
	return a
}

func (a *Args) Bytes() []byte {
	return a.buf.Bytes()
}

// U256Bytes encodes an unsigned integer as 32 little-endian bytes.
func U256Bytes(v *big.Int) []byte {
	out := make([]byte, 32)
	raw := v.Bytes() // big-endian
	for i, b := range raw {
		out[len(raw)-1-i] = b
	}
	return out
}

// U256FromBytes decodes a little-endian unsigned integer of any width up to
// 32 bytes, the encoding datastore values use.
func U256FromBytes(raw []byte) *big.Int {
	be := make([]byte, len(raw))
	for i, b := range raw {
		be[len(raw)-1-i] = b
	}
	return new(big.Int).SetBytes(be)
}

// U32FromBytes decodes a little-endian u32 from the head of raw.
func U32FromBytes(raw []byte) (uint32, bool) {
	if len(raw) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(raw[:4]), true
}

// serializeCall flattens an outbound contract call for signing and
// submission.
func serializeCall(call ContractCall) []byte {
	args := NewArgs().
		AddU64(call.Fee).
		AddU64(call.MaxGas).
		AddU64(call.Coins).
		AddString(call.Target).
		AddString(call.Function)
	args.AddU32(uint32(len(call.Parameter)))
	args.buf.Write(call.Parameter)
	return args.Bytes()
}
