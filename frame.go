package main

import (
	"encoding/binary"
)

// CELX wire protocol, version 1. Every frame is a 22-byte header followed
// by a payload of the declared length. All header integers are big-endian.
//
//	Offset  Size  Field
//	0       4     Magic "CELX"
//	4       1     Version
//	5       1     OpCode
//	6       2     Flags (reserved)
//	8       4     Payload length
//	12      8     Request ID (opaque echo)
//	20      2     Reserved

const (
	ProtocolVersion = 0x01
	HeaderSize      = 22
)

// Magic bytes identifying the CELX protocol.
var frameMagic = [4]byte{0x43, 0x45, 0x4C, 0x58}

// OpCode identifies a command or response frame.
type OpCode uint8

const (
	// Basic operations
	OpPing   OpCode = 0x01
	OpPong   OpCode = 0x02
	OpGet    OpCode = 0x03
	OpSet    OpCode = 0x04
	OpDel    OpCode = 0x05
	OpExists OpCode = 0x06

	// Multi-key operations
	OpMGet OpCode = 0x07
	OpMSet OpCode = 0x08
	OpMDel OpCode = 0x09

	// Atomic counters
	OpIncr   OpCode = 0x0A
	OpDecr   OpCode = 0x0B
	OpIncrBy OpCode = 0x0C
	OpDecrBy OpCode = 0x0D

	// Keyspace operations
	OpScan OpCode = 0x0E
	OpKeys OpCode = 0x0F

	// Responses
	OpOK      OpCode = 0x10
	OpError   OpCode = 0x11
	OpValue   OpCode = 0x12
	OpNil     OpCode = 0x13
	OpInteger OpCode = 0x14
	OpArray   OpCode = 0x15

	// Vector operations
	OpVAdd    OpCode = 0x20
	OpVSearch OpCode = 0x21
)

var opNames = map[OpCode]string{
	OpPing:    "PING",
	OpPong:    "PONG",
	OpGet:     "GET",
	OpSet:     "SET",
	OpDel:     "DEL",
	OpExists:  "EXISTS",
	OpMGet:    "MGET",
	OpMSet:    "MSET",
	OpMDel:    "MDEL",
	OpIncr:    "INCR",
	OpDecr:    "DECR",
	OpIncrBy:  "INCRBY",
	OpDecrBy:  "DECRBY",
	OpScan:    "SCAN",
	OpKeys:    "KEYS",
	OpOK:      "OK",
	OpError:   "ERROR",
	OpValue:   "VALUE",
	OpNil:     "NIL",
	OpInteger: "INTEGER",
	OpArray:   "ARRAY",
	OpVAdd:    "VADD",
	OpVSearch: "VSEARCH",
}

func (op OpCode) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// validOpCode reports whether op is part of the CELX v1 opcode table.
func validOpCode(op OpCode) bool {
	_, ok := opNames[op]
	return ok
}

// Frame is one unit of the wire protocol: a decoded header plus payload.
type Frame struct {
	OpCode    OpCode
	Flags     uint16
	RequestID uint64
	Payload   []byte
}

// NewFrame builds a frame with the given opcode, request id and payload.
func NewFrame(op OpCode, requestID uint64, payload []byte) *Frame {
	return &Frame{OpCode: op, RequestID: requestID, Payload: payload}
}

// EncodedLen returns the full on-wire size of the frame.
func (f *Frame) EncodedLen() int {
	return HeaderSize + len(f.Payload)
}

// AppendEncode appends the encoded frame (header then payload) to dst and
// returns the extended slice. It never allocates beyond the combined size.
func (f *Frame) AppendEncode(dst []byte) []byte {
	var hdr [HeaderSize]byte
	copy(hdr[0:4], frameMagic[:])
	hdr[4] = ProtocolVersion
	hdr[5] = byte(f.OpCode)
	binary.BigEndian.PutUint16(hdr[6:8], f.Flags)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(f.Payload)))
	binary.BigEndian.PutUint64(hdr[12:20], f.RequestID)
	binary.BigEndian.PutUint16(hdr[20:22], 0)

	dst = append(dst, hdr[:]...)
	dst = append(dst, f.Payload...)
	return dst
}

// Encode returns the frame encoded into a fresh buffer.
func (f *Frame) Encode() []byte {
	return f.AppendEncode(make([]byte, 0, f.EncodedLen()))
}

// decodeHeader parses a 22-byte header. It fails with a PROTOCOL error on
// bad magic, version mismatch or an opcode outside the table.
func decodeHeader(hdr []byte) (op OpCode, flags uint16, payloadLen uint32, requestID uint64, err error) {
	if len(hdr) < HeaderSize {
		return 0, 0, 0, 0, protocolErrorf("short header: %d bytes", len(hdr))
	}
	if hdr[0] != frameMagic[0] || hdr[1] != frameMagic[1] || hdr[2] != frameMagic[2] || hdr[3] != frameMagic[3] {
		return 0, 0, 0, 0, protocolErrorf("invalid magic bytes %x", hdr[0:4])
	}
	if hdr[4] != ProtocolVersion {
		return 0, 0, 0, 0, protocolErrorf("unsupported protocol version %d", hdr[4])
	}
	op = OpCode(hdr[5])
	if !validOpCode(op) {
		return 0, 0, 0, 0, protocolErrorf("unknown opcode 0x%02x", hdr[5])
	}
	flags = binary.BigEndian.Uint16(hdr[6:8])
	payloadLen = binary.BigEndian.Uint32(hdr[8:12])
	requestID = binary.BigEndian.Uint64(hdr[12:20])
	return op, flags, payloadLen, requestID, nil
}
