package main

import (
	"encoding/binary"
	"math"
)

// KVPair is one key/value pair in an MSET payload.
type KVPair struct {
	Key   []byte
	Value []byte
}

// Command is a parsed request frame. Op selects which fields are
// meaningful; the zero value of unused fields is ignored. Parsing is
// strict-length: every length prefix must be satisfied by the remaining
// payload.
type Command struct {
	Op OpCode

	Key   []byte
	Value []byte
	TTL   uint64 // seconds, 0 = no expiry

	Keys  [][]byte // MGET, MDEL
	Pairs []KVPair // MSET

	Delta int64 // INCRBY, DECRBY

	Cursor  uint64 // SCAN
	Count   uint32 // SCAN
	Pattern []byte // SCAN, KEYS (nil = match all)

	Vector []float32 // VADD, VSEARCH
	K      uint32    // VSEARCH
}

// Name returns the command's wire name for metrics and logs. Nil-safe
// because the panic-recovery path may report on a malformed item.
func (c *Command) Name() string {
	if c == nil {
		return "UNKNOWN"
	}
	return c.Op.String()
}

// payloadReader walks a payload enforcing strict lengths.
type payloadReader struct {
	buf []byte
	pos int
}

func (r *payloadReader) remaining() int { return len(r.buf) - r.pos }

func (r *payloadReader) u32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, protocolErrorf("truncated payload: need 4 bytes, have %d", r.remaining())
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *payloadReader) u64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, protocolErrorf("truncated payload: need 8 bytes, have %d", r.remaining())
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *payloadReader) i64() (int64, error) {
	v, err := r.u64()
	return int64(v), err
}

// bytesPrefixed reads a u32 length prefix followed by that many bytes.
func (r *payloadReader) bytesPrefixed() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if r.remaining() < int(n) {
		return nil, protocolErrorf("truncated payload: declared %d bytes, have %d", n, r.remaining())
	}
	b := make([]byte, n)
	copy(b, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return b, nil
}

// vector reads a u32 dimension followed by that many big-endian f32s.
func (r *payloadReader) vector() ([]float32, error) {
	dim, err := r.u32()
	if err != nil {
		return nil, err
	}
	if need := int(dim) * 4; r.remaining() < need {
		return nil, protocolErrorf("truncated vector: dim %d needs %d bytes, have %d", dim, need, r.remaining())
	}
	vec := make([]float32, dim)
	for i := range vec {
		bits := binary.BigEndian.Uint32(r.buf[r.pos:])
		vec[i] = math.Float32frombits(bits)
		r.pos += 4
	}
	return vec, nil
}

// ParseCommand parses a request frame into a Command. Response opcodes and
// malformed payloads yield PROTOCOL errors.
func ParseCommand(f *Frame) (*Command, error) {
	r := &payloadReader{buf: f.Payload}
	cmd := &Command{Op: f.OpCode}

	switch f.OpCode {
	case OpPing:
		return cmd, nil

	case OpGet, OpDel, OpExists, OpIncr, OpDecr:
		key, err := r.bytesPrefixed()
		if err != nil {
			return nil, err
		}
		if len(key) == 0 {
			return nil, protocolErrorf("%s: empty key", f.OpCode)
		}
		cmd.Key = key
		return cmd, nil

	case OpSet:
		key, err := r.bytesPrefixed()
		if err != nil {
			return nil, err
		}
		if len(key) == 0 {
			return nil, protocolErrorf("SET: empty key")
		}
		value, err := r.bytesPrefixed()
		if err != nil {
			return nil, err
		}
		ttl, err := r.u64()
		if err != nil {
			return nil, err
		}
		cmd.Key, cmd.Value, cmd.TTL = key, value, ttl
		return cmd, nil

	case OpMGet, OpMDel:
		keys, err := parseKeyList(r)
		if err != nil {
			return nil, err
		}
		cmd.Keys = keys
		return cmd, nil

	case OpMSet:
		count, err := r.u32()
		if err != nil {
			return nil, err
		}
		pairs := make([]KVPair, 0, count)
		for i := uint32(0); i < count; i++ {
			key, err := r.bytesPrefixed()
			if err != nil {
				return nil, err
			}
			value, err := r.bytesPrefixed()
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, KVPair{Key: key, Value: value})
		}
		cmd.Pairs = pairs
		return cmd, nil

	case OpIncrBy, OpDecrBy:
		key, err := r.bytesPrefixed()
		if err != nil {
			return nil, err
		}
		delta, err := r.i64()
		if err != nil {
			return nil, err
		}
		cmd.Key, cmd.Delta = key, delta
		return cmd, nil

	case OpScan:
		cursor, err := r.u64()
		if err != nil {
			return nil, err
		}
		count, err := r.u32()
		if err != nil {
			return nil, err
		}
		cmd.Cursor, cmd.Count = cursor, count
		if r.remaining() > 0 {
			pattern, err := r.bytesPrefixed()
			if err != nil {
				return nil, err
			}
			cmd.Pattern = pattern
		}
		return cmd, nil

	case OpKeys:
		// Empty payload means match everything.
		if r.remaining() > 0 {
			pattern, err := r.bytesPrefixed()
			if err != nil {
				return nil, err
			}
			cmd.Pattern = pattern
		}
		return cmd, nil

	case OpVAdd:
		key, err := r.bytesPrefixed()
		if err != nil {
			return nil, err
		}
		if len(key) == 0 {
			return nil, protocolErrorf("VADD: empty key")
		}
		vec, err := r.vector()
		if err != nil {
			return nil, err
		}
		cmd.Key, cmd.Vector = key, vec
		return cmd, nil

	case OpVSearch:
		vec, err := r.vector()
		if err != nil {
			return nil, err
		}
		cmd.Vector = vec
		cmd.K = defaultSearchK
		if r.remaining() > 0 {
			k, err := r.u32()
			if err != nil {
				return nil, err
			}
			if k > 0 {
				cmd.K = k
			}
		}
		return cmd, nil

	default:
		return nil, protocolErrorf("opcode %s is not a command", f.OpCode)
	}
}

// defaultSearchK is the k used when a VSEARCH frame omits the field.
const defaultSearchK = 10

func parseKeyList(r *payloadReader) ([][]byte, error) {
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	keys := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		key, err := r.bytesPrefixed()
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// EncodeFrame serializes the command into a request frame. This is the
// client-side mirror of ParseCommand and the round-trip partner under test.
func (c *Command) EncodeFrame(requestID uint64) *Frame {
	var p []byte

	switch c.Op {
	case OpPing:
		// no payload

	case OpGet, OpDel, OpExists, OpIncr, OpDecr:
		p = appendPrefixed(p, c.Key)

	case OpSet:
		p = appendPrefixed(p, c.Key)
		p = appendPrefixed(p, c.Value)
		p = binary.BigEndian.AppendUint64(p, c.TTL)

	case OpMGet, OpMDel:
		p = binary.BigEndian.AppendUint32(p, uint32(len(c.Keys)))
		for _, k := range c.Keys {
			p = appendPrefixed(p, k)
		}

	case OpMSet:
		p = binary.BigEndian.AppendUint32(p, uint32(len(c.Pairs)))
		for _, pair := range c.Pairs {
			p = appendPrefixed(p, pair.Key)
			p = appendPrefixed(p, pair.Value)
		}

	case OpIncrBy, OpDecrBy:
		p = appendPrefixed(p, c.Key)
		p = binary.BigEndian.AppendUint64(p, uint64(c.Delta))

	case OpScan:
		p = binary.BigEndian.AppendUint64(p, c.Cursor)
		p = binary.BigEndian.AppendUint32(p, c.Count)
		if c.Pattern != nil {
			p = appendPrefixed(p, c.Pattern)
		}

	case OpKeys:
		if c.Pattern != nil {
			p = appendPrefixed(p, c.Pattern)
		}

	case OpVAdd:
		p = appendPrefixed(p, c.Key)
		p = appendVector(p, c.Vector)

	case OpVSearch:
		p = appendVector(p, c.Vector)
		p = binary.BigEndian.AppendUint32(p, c.K)
	}

	return NewFrame(c.Op, requestID, p)
}

func appendPrefixed(dst, b []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(b)))
	return append(dst, b...)
}

func appendVector(dst []byte, vec []float32) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(vec)))
	for _, v := range vec {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}
