package main

import (
	"encoding/binary"
)

// Response is the result of executing one command. Op is always one of the
// response opcodes; the payload fields mirror their wire forms.
type Response struct {
	Op    OpCode
	Value []byte   // VALUE
	Int   int64    // INTEGER
	Msg   string   // ERROR
	Items [][]byte // ARRAY
}

func respOK() Response                  { return Response{Op: OpOK} }
func respNil() Response                 { return Response{Op: OpNil} }
func respPong() Response                { return Response{Op: OpPong} }
func respValue(v []byte) Response       { return Response{Op: OpValue, Value: v} }
func respInteger(n int64) Response      { return Response{Op: OpInteger, Int: n} }
func respError(msg string) Response     { return Response{Op: OpError, Msg: msg} }
func respArray(items [][]byte) Response { return Response{Op: OpArray, Items: items} }

// ToFrame serializes the response, echoing the request id.
func (r Response) ToFrame(requestID uint64) *Frame {
	switch r.Op {
	case OpOK, OpNil, OpPong:
		return NewFrame(r.Op, requestID, nil)

	case OpValue:
		return NewFrame(OpValue, requestID, r.Value)

	case OpInteger:
		var p [8]byte
		binary.BigEndian.PutUint64(p[:], uint64(r.Int))
		return NewFrame(OpInteger, requestID, p[:])

	case OpError:
		return NewFrame(OpError, requestID, []byte(r.Msg))

	case OpArray:
		return NewFrame(OpArray, requestID, encodeArray(r.Items))

	default:
		return NewFrame(OpError, requestID, []byte("internal: bad response opcode"))
	}
}

// ParseResponse parses a response frame. Command opcodes and malformed
// payloads yield PROTOCOL errors. Used by the client and the round-trip
// tests.
func ParseResponse(f *Frame) (Response, error) {
	switch f.OpCode {
	case OpOK:
		return respOK(), nil
	case OpNil:
		return respNil(), nil
	case OpPong:
		return respPong(), nil

	case OpValue:
		v := make([]byte, len(f.Payload))
		copy(v, f.Payload)
		return respValue(v), nil

	case OpInteger:
		if len(f.Payload) != 8 {
			return Response{}, protocolErrorf("INTEGER payload must be 8 bytes, got %d", len(f.Payload))
		}
		return respInteger(int64(binary.BigEndian.Uint64(f.Payload))), nil

	case OpError:
		return respError(string(f.Payload)), nil

	case OpArray:
		items, err := decodeArray(f.Payload)
		if err != nil {
			return Response{}, err
		}
		return respArray(items), nil

	default:
		return Response{}, protocolErrorf("opcode %s is not a response", f.OpCode)
	}
}

// encodeArray writes the flat untagged ARRAY form: u32 count followed by
// u32-length-prefixed items.
func encodeArray(items [][]byte) []byte {
	total := 4
	for _, item := range items {
		total += 4 + len(item)
	}

	buf := make([]byte, 0, total)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(items)))
	for _, item := range items {
		buf = appendPrefixed(buf, item)
	}
	return buf
}

func decodeArray(payload []byte) ([][]byte, error) {
	r := &payloadReader{buf: payload}
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	items := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		item, err := r.bytesPrefixed()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
