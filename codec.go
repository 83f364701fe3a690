package main

// Decoder is the incremental CELX frame decoder. Bytes are fed in as they
// arrive off the socket; complete frames are drained with Next. Partial
// input is held until enough bytes arrive.
type Decoder struct {
	buf        []byte
	maxPayload uint32
}

// DefaultMaxPayload caps a single frame's payload at 16 MiB.
const DefaultMaxPayload = 16 << 20

// NewDecoder creates a decoder. maxPayload of 0 selects DefaultMaxPayload.
func NewDecoder(maxPayload uint32) *Decoder {
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Decoder{maxPayload: maxPayload}
}

// Feed appends raw stream bytes to the decode buffer.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of bytes held awaiting a complete frame.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Next returns the next complete frame, or (nil, nil) when more input is
// needed. Header validation failures are PROTOCOL errors; once an error is
// returned the stream is unrecoverable and the connection must close.
func (d *Decoder) Next() (*Frame, error) {
	if len(d.buf) < HeaderSize {
		return nil, nil
	}

	op, flags, payloadLen, requestID, err := decodeHeader(d.buf[:HeaderSize])
	if err != nil {
		return nil, err
	}
	if payloadLen > d.maxPayload {
		return nil, protocolErrorf("payload length %d exceeds limit %d", payloadLen, d.maxPayload)
	}

	total := HeaderSize + int(payloadLen)
	if len(d.buf) < total {
		return nil, nil
	}

	payload := make([]byte, payloadLen)
	copy(payload, d.buf[HeaderSize:total])

	// Shift the remainder down. The buffer is reused across frames.
	n := copy(d.buf, d.buf[total:])
	d.buf = d.buf[:n]

	return &Frame{OpCode: op, Flags: flags, RequestID: requestID, Payload: payload}, nil
}

// CloseCheck reports the error for a stream that ended mid-frame: a peer
// that closes after a partial header or payload left the decoder with
// buffered bytes that can never complete.
func (d *Decoder) CloseCheck() error {
	if len(d.buf) > 0 {
		return protocolErrorf("connection closed with %d bytes of truncated frame", len(d.buf))
	}
	return nil
}
