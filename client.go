package main

import (
	"net"
	"sync/atomic"
	"time"
)

// Client is a minimal CELX client. It serializes requests on a single
// connection and checks that each response echoes the request id. The
// end-to-end tests drive the server through it.
type Client struct {
	conn   net.Conn
	dec    *Decoder
	nextID atomic.Uint64
}

// Dial connects to a CELRIX server.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, ioError("dial "+addr, err)
	}
	return &Client{conn: conn, dec: NewDecoder(0)}, nil
}

// Close tears down the connection.
func (c *Client) Close() error { return c.conn.Close() }

// roundTrip sends one command frame and reads the matching response.
func (c *Client) roundTrip(cmd *Command) (Response, error) {
	id := c.nextID.Add(1)
	frame := cmd.EncodeFrame(id)

	if _, err := c.conn.Write(frame.Encode()); err != nil {
		return Response{}, ioError("write", err)
	}

	readBuf := make([]byte, 4096)
	for {
		if f, err := c.dec.Next(); err != nil {
			return Response{}, err
		} else if f != nil {
			if f.RequestID != id {
				return Response{}, protocolErrorf("response for request %d, expected %d", f.RequestID, id)
			}
			return ParseResponse(f)
		}

		n, err := c.conn.Read(readBuf)
		if err != nil {
			return Response{}, ioError("read", err)
		}
		c.dec.Feed(readBuf[:n])
	}
}

// Ping checks liveness.
func (c *Client) Ping() error {
	resp, err := c.roundTrip(&Command{Op: OpPing})
	if err != nil {
		return err
	}
	if resp.Op != OpPong {
		return protocolErrorf("expected PONG, got %s", resp.Op)
	}
	return nil
}

// Set stores value under key. A ttl of zero means no expiry.
func (c *Client) Set(key, value []byte, ttl time.Duration) (Response, error) {
	return c.roundTrip(&Command{Op: OpSet, Key: key, Value: value, TTL: uint64(ttl / time.Second)})
}

// Get fetches key's value. The NIL response maps to ok=false.
func (c *Client) Get(key []byte) ([]byte, bool, error) {
	resp, err := c.roundTrip(&Command{Op: OpGet, Key: key})
	if err != nil {
		return nil, false, err
	}
	switch resp.Op {
	case OpValue:
		return resp.Value, true, nil
	case OpNil:
		return nil, false, nil
	case OpError:
		return nil, false, protocolErrorf("server error: %s", resp.Msg)
	default:
		return nil, false, protocolErrorf("unexpected %s response to GET", resp.Op)
	}
}

// Del removes key, reporting whether it existed.
func (c *Client) Del(key []byte) (bool, error) {
	resp, err := c.roundTrip(&Command{Op: OpDel, Key: key})
	if err != nil {
		return false, err
	}
	return resp.Int == 1, nil
}

// Exists reports whether key holds a live entry.
func (c *Client) Exists(key []byte) (bool, error) {
	resp, err := c.roundTrip(&Command{Op: OpExists, Key: key})
	if err != nil {
		return false, err
	}
	return resp.Int == 1, nil
}

// MGet fetches several keys; missing keys come back as empty items.
func (c *Client) MGet(keys ...[]byte) ([][]byte, error) {
	resp, err := c.roundTrip(&Command{Op: OpMGet, Keys: keys})
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// MSet stores several pairs without TTLs.
func (c *Client) MSet(pairs []KVPair) error {
	_, err := c.roundTrip(&Command{Op: OpMSet, Pairs: pairs})
	return err
}

// MDel removes several keys, returning the deleted count.
func (c *Client) MDel(keys ...[]byte) (int64, error) {
	resp, err := c.roundTrip(&Command{Op: OpMDel, Keys: keys})
	if err != nil {
		return 0, err
	}
	return resp.Int, nil
}

// Incr adds one to the decimal integer at key.
func (c *Client) Incr(key []byte) (int64, error) { return c.adjust(OpIncr, key, 0) }

// Decr subtracts one from the decimal integer at key.
func (c *Client) Decr(key []byte) (int64, error) { return c.adjust(OpDecr, key, 0) }

// IncrBy adds delta to the decimal integer at key.
func (c *Client) IncrBy(key []byte, delta int64) (int64, error) {
	return c.adjust(OpIncrBy, key, delta)
}

// DecrBy subtracts delta from the decimal integer at key.
func (c *Client) DecrBy(key []byte, delta int64) (int64, error) {
	return c.adjust(OpDecrBy, key, delta)
}

func (c *Client) adjust(op OpCode, key []byte, delta int64) (int64, error) {
	resp, err := c.roundTrip(&Command{Op: op, Key: key, Delta: delta})
	if err != nil {
		return 0, err
	}
	if resp.Op == OpError {
		return 0, protocolErrorf("server error: %s", resp.Msg)
	}
	return resp.Int, nil
}

// Keys lists keys matching pattern ("" matches all).
func (c *Client) Keys(pattern string) ([]string, error) {
	cmd := &Command{Op: OpKeys}
	if pattern != "" {
		cmd.Pattern = []byte(pattern)
	}
	resp, err := c.roundTrip(cmd)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(resp.Items))
	for i, item := range resp.Items {
		keys[i] = string(item)
	}
	return keys, nil
}

// Scan pages the keyspace. The returned cursor is 0 when iteration is
// done.
func (c *Client) Scan(cursor uint64, pattern string, count uint32) (uint64, []string, error) {
	cmd := &Command{Op: OpScan, Cursor: cursor, Count: count}
	if pattern != "" {
		cmd.Pattern = []byte(pattern)
	}
	resp, err := c.roundTrip(cmd)
	if err != nil {
		return 0, nil, err
	}
	if len(resp.Items) == 0 {
		return 0, nil, protocolErrorf("SCAN response missing cursor")
	}

	var next uint64
	for _, ch := range resp.Items[0] {
		next = next*10 + uint64(ch-'0')
	}
	keys := make([]string, len(resp.Items)-1)
	for i, item := range resp.Items[1:] {
		keys[i] = string(item)
	}
	return next, keys, nil
}

// VAdd stores a vector under key.
func (c *Client) VAdd(key []byte, vector []float32) (Response, error) {
	return c.roundTrip(&Command{Op: OpVAdd, Key: key, Vector: vector})
}

// VSearch returns the keys of up to k stored vectors most similar to
// query, ordered by descending similarity.
func (c *Client) VSearch(vector []float32, k uint32) ([]string, error) {
	resp, err := c.roundTrip(&Command{Op: OpVSearch, Vector: vector, K: k})
	if err != nil {
		return nil, err
	}
	if resp.Op == OpError {
		return nil, protocolErrorf("server error: %s", resp.Msg)
	}
	keys := make([]string, len(resp.Items))
	for i, item := range resp.Items {
		keys[i] = string(item)
	}
	return keys, nil
}
