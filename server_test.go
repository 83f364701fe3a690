package main

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestServer boots a full server on an ephemeral port and tears it
// down with the test.
func startTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Bind = "127.0.0.1"
	cfg.Port = 0
	cfg.AdminEnabled = false
	cfg.PinKVWorkers = false
	cfg.KVWorkers = 2
	cfg.VectorWorkers = 2
	cfg.VectorDim = 3
	cfg.SemanticThreshold = 0.8
	cfg.SweepInterval = time.Second
	if mutate != nil {
		mutate(cfg)
	}

	server, err := NewServer(cfg, newTestLogger(t))
	require.NoError(t, err)

	go server.Start()
	require.Eventually(t, func() bool { return server.Addr() != "" },
		2*time.Second, 5*time.Millisecond, "server did not bind")

	t.Cleanup(server.Stop)
	return server
}

func dialTest(t *testing.T, server *Server) *Client {
	t.Helper()
	client, err := Dial(server.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestServerPing(t *testing.T) {
	server := startTestServer(t, nil)
	client := dialTest(t, server)
	require.NoError(t, client.Ping())
}

func TestServerPingEchoesRequestID(t *testing.T) {
	server := startTestServer(t, nil)

	conn, err := net.Dial("tcp", server.Addr())
	require.NoError(t, err)
	defer conn.Close()

	// Opcode 0x01, request id 7, zero payload.
	_, err = conn.Write(NewFrame(OpPing, 7, nil).Encode())
	require.NoError(t, err)

	dec := NewDecoder(0)
	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		dec.Feed(buf[:n])
		f, err := dec.Next()
		require.NoError(t, err)
		if f == nil {
			continue
		}
		assert.Equal(t, OpPong, f.OpCode)
		assert.Equal(t, uint64(7), f.RequestID)
		assert.Empty(t, f.Payload)
		return
	}
}

func TestServerSetThenGet(t *testing.T) {
	server := startTestServer(t, nil)
	client := dialTest(t, server)

	resp, err := client.Set([]byte("hello"), []byte("world"), 0)
	require.NoError(t, err)
	assert.Equal(t, OpOK, resp.Op)

	value, ok, err := client.Get([]byte("hello"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("world"), value)
	assert.Len(t, value, 5)
}

func TestServerExpiration(t *testing.T) {
	server := startTestServer(t, nil)
	client := dialTest(t, server)

	_, err := client.Set([]byte("k"), []byte("v"), time.Second)
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)

	_, ok, err := client.Get([]byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServerDelSemantics(t *testing.T) {
	server := startTestServer(t, nil)
	client := dialTest(t, server)

	_, err := client.Set([]byte("a"), []byte("1"), 0)
	require.NoError(t, err)

	existed, err := client.Del([]byte("a"))
	require.NoError(t, err)
	assert.True(t, existed)

	exists, err := client.Exists([]byte("a"))
	require.NoError(t, err)
	assert.False(t, exists)

	existed, err = client.Del([]byte("a"))
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestServerVAddVSearch(t *testing.T) {
	server := startTestServer(t, nil) // dim 3, threshold 0.8
	client := dialTest(t, server)

	_, err := client.VAdd([]byte("q1"), []float32{1.0, 0.0, 0.0})
	require.NoError(t, err)
	_, err = client.VAdd([]byte("q2"), []float32{0.0, 1.0, 0.0})
	require.NoError(t, err)

	keys, err := client.VSearch([]float32{0.95, 0.1, 0.0}, 5)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "q1", keys[0])

	keys, err = client.VSearch([]float32{0.0, 0.0, 1.0}, 5)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestServerExtendedCommands(t *testing.T) {
	server := startTestServer(t, nil)
	client := dialTest(t, server)

	require.NoError(t, client.MSet([]KVPair{
		{Key: []byte("m1"), Value: []byte("a")},
		{Key: []byte("m2"), Value: []byte("b")},
	}))

	values, err := client.MGet([]byte("m1"), []byte("nope"), []byte("m2"))
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, []byte("a"), values[0])
	assert.Empty(t, values[1])
	assert.Equal(t, []byte("b"), values[2])

	n, err := client.Incr([]byte("counter"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = client.IncrBy([]byte("counter"), 9)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	n, err = client.DecrBy([]byte("counter"), 4)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	keys, err := client.Keys("m*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"m1", "m2"}, keys)

	cursor, page, err := client.Scan(0, "", 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.NotZero(t, cursor)

	deleted, err := client.MDel([]byte("m1"), []byte("m2"), []byte("nope"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

func TestServerParseErrorKeepsConnection(t *testing.T) {
	server := startTestServer(t, nil)

	conn, err := net.Dial("tcp", server.Addr())
	require.NoError(t, err)
	defer conn.Close()

	// A SET frame whose payload ends mid-key: the server answers ERROR
	// on the same request id and keeps serving.
	_, err = conn.Write(NewFrame(OpSet, 11, []byte{0x00, 0x00, 0x00, 0x05, 'a'}).Encode())
	require.NoError(t, err)

	dec := NewDecoder(0)
	buf := make([]byte, 1024)
	readFrame := func() *Frame {
		for {
			if f, err := dec.Next(); err != nil {
				t.Fatal(err)
			} else if f != nil {
				return f
			}
			n, err := conn.Read(buf)
			require.NoError(t, err)
			dec.Feed(buf[:n])
		}
	}

	f := readFrame()
	assert.Equal(t, OpError, f.OpCode)
	assert.Equal(t, uint64(11), f.RequestID)

	// The connection is still usable.
	_, err = conn.Write(NewFrame(OpPing, 12, nil).Encode())
	require.NoError(t, err)
	f = readFrame()
	assert.Equal(t, OpPong, f.OpCode)
	assert.Equal(t, uint64(12), f.RequestID)
}

func TestServerBadMagicClosesConnection(t *testing.T) {
	server := startTestServer(t, nil)

	conn, err := net.Dial("tcp", server.Addr())
	require.NoError(t, err)
	defer conn.Close()

	garbage := make([]byte, HeaderSize)
	copy(garbage, "JUNKJUNKJUNK")
	_, err = conn.Write(garbage)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	_, err = conn.Read(buf)
	assert.Error(t, err) // closed without a response
}

func TestServerConcurrentConnections(t *testing.T) {
	server := startTestServer(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			client, err := Dial(server.Addr())
			require.NoError(t, err)
			defer client.Close()

			key := []byte{byte('a' + id)}
			for j := 0; j < 50; j++ {
				_, err := client.Set(key, []byte("v"), 0)
				require.NoError(t, err)
				_, ok, err := client.Get(key)
				require.NoError(t, err)
				require.True(t, ok)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, server.Store().Len())
	assert.GreaterOrEqual(t, server.Metrics().TotalOps(), uint64(800))
}

func TestServerResponsesInRequestOrder(t *testing.T) {
	server := startTestServer(t, nil)

	conn, err := net.Dial("tcp", server.Addr())
	require.NoError(t, err)
	defer conn.Close()

	// Write several frames back to back; replies must come back in
	// request order even though they were readable as one burst.
	var burst []byte
	for i := uint64(1); i <= 5; i++ {
		burst = NewFrame(OpPing, i, nil).AppendEncode(burst)
	}
	_, err = conn.Write(burst)
	require.NoError(t, err)

	dec := NewDecoder(0)
	buf := make([]byte, 1024)
	var got []uint64
	for len(got) < 5 {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		dec.Feed(buf[:n])
		for {
			f, err := dec.Next()
			require.NoError(t, err)
			if f == nil {
				break
			}
			got = append(got, f.RequestID)
		}
	}
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, got)
}

func TestServerPersistenceAcrossRestart(t *testing.T) {
	dataDir := t.TempDir()
	mutate := func(c *Config) {
		c.EnablePersist = true
		c.DataDir = dataDir
		c.AofSync = "always"
		c.SaveInterval = time.Hour
	}

	server := startTestServer(t, mutate)
	client := dialTest(t, server)

	_, err := client.Set([]byte("persisted"), []byte("survives"), 0)
	require.NoError(t, err)
	_, err = client.Set([]byte("doomed"), []byte("x"), 0)
	require.NoError(t, err)
	_, err = client.Del([]byte("doomed"))
	require.NoError(t, err)

	client.Close()
	server.Stop()

	restarted := startTestServer(t, mutate)
	client2 := dialTest(t, restarted)

	value, ok, err := client2.Get([]byte("persisted"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("survives"), value)

	_, ok, err = client2.Get([]byte("doomed"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServerBindFailureIsFatal(t *testing.T) {
	// Occupy a port, then ask the server to bind it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := DefaultConfig()
	cfg.Bind = "127.0.0.1"
	cfg.Port = ln.Addr().(*net.TCPAddr).Port
	cfg.AdminEnabled = false
	cfg.PinKVWorkers = false
	cfg.KVWorkers = 1
	cfg.VectorWorkers = 1

	server, err := NewServer(cfg, newTestLogger(t))
	require.NoError(t, err)

	err = server.Start()
	require.Error(t, err)
	assert.Equal(t, KindFatal, errKind(err))
}
