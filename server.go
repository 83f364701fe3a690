package main

import (
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/xid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server owns the data plane: the listener, the two worker pools with
// their queues, the sharded store, the semantic cache and the background
// tasks (sweeper, admin HTTP, periodic snapshots). All consumers hold
// shared references to the same store and metrics for the process's
// lifetime.
type Server struct {
	cfg     *Config
	logger  *zap.Logger
	store   *Store
	cache   *SemanticCache
	metrics *Metrics

	kvQueue  *CommandQueue
	vecQueue *CommandQueue
	kvPool   *WorkerPool
	vecPool  *WorkerPool
	disp     *Dispatcher
	sweeper  *Sweeper
	bufPool  *BytePool

	aof   *AofWriter
	admin *AdminServer

	listener net.Listener
	connWG   sync.WaitGroup
	bg       *errgroup.Group
	bgCancel context.CancelFunc

	mu      sync.Mutex
	running bool
	conns   map[net.Conn]struct{}
}

// NewServer assembles a server from config. When persistence is enabled
// the prior snapshot is restored and the operation log replayed before
// any connection is accepted.
func NewServer(cfg *Config, logger *zap.Logger) (*Server, error) {
	kvWorkers := cfg.EffectiveKVWorkers()
	store := NewStore(kvWorkers)

	cache := NewSemanticCache(SemanticCacheConfig{
		SimilarityThreshold: float32(cfg.SemanticThreshold),
		MaxResults:          cfg.SemanticMaxResults,
		Dimension:           cfg.VectorDim,
	})

	metrics := NewMetrics()

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		cache:    cache,
		metrics:  metrics,
		kvQueue:  NewCommandQueue(cfg.QueueCapacity),
		vecQueue: NewCommandQueue(cfg.QueueCapacity),
		bufPool:  NewBytePool(),
		conns:    make(map[net.Conn]struct{}),
	}
	s.disp = NewDispatcher(s.kvQueue, s.vecQueue)
	s.sweeper = NewSweeper(store, cfg.SweepInterval, logger)

	if cfg.EnablePersist {
		if err := s.restorePersisted(); err != nil {
			return nil, err
		}
	}

	exec := NewExecutor(store, cache, s.aof)
	s.kvPool = NewWorkerPool(WorkerPoolConfig{
		Name:       "kv",
		NumWorkers: kvWorkers,
		PinToCores: cfg.PinKVWorkers,
	}, s.kvQueue, exec, metrics, logger)
	s.vecPool = NewWorkerPool(WorkerPoolConfig{
		Name:       "vector",
		NumWorkers: cfg.VectorWorkers,
		PinToCores: false,
	}, s.vecQueue, exec, metrics, logger)

	if cfg.AdminEnabled {
		s.admin = NewAdminServer(cfg.AdminAddr(), store, cache.Index(), metrics, logger)
	}

	return s, nil
}

func (s *Server) snapshotPath() string { return filepath.Join(s.cfg.DataDir, "celrix.snapshot") }
func (s *Server) aofPath() string      { return filepath.Join(s.cfg.DataDir, "celrix.aof") }

// restorePersisted loads the snapshot, replays the log and opens the log
// for appending.
func (s *Server) restorePersisted() error {
	restored, err := RestoreSnapshot(s.snapshotPath(), s.store)
	if err != nil {
		return err
	}
	replayed, err := ReplayAof(s.aofPath(), s.store)
	if err != nil {
		return err
	}
	if restored > 0 || replayed > 0 {
		s.logger.Info("restored persisted state",
			zap.Int("snapshot_entries", restored),
			zap.Int("aof_records", replayed))
	}

	mode, err := ParseAofSyncMode(s.cfg.AofSync)
	if err != nil {
		return err
	}
	s.aof, err = OpenAof(s.aofPath(), mode)
	return err
}

// Store exposes the KV store, for tests.
func (s *Server) Store() *Store { return s.store }

// Metrics exposes the shared metrics handle.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Addr returns the bound listen address, valid after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start binds the listener and launches workers, sweeper and background
// tasks, then runs the accept loop until Stop. Bind failure is fatal.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fatalError("bind "+s.cfg.Addr(), err)
	}
	s.listener = ln

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.logger.Info("celrix server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Int("kv_workers", s.cfg.EffectiveKVWorkers()),
		zap.Int("vector_workers", s.cfg.VectorWorkers),
		zap.Int("shards", s.store.NumShards()))

	s.kvPool.Start()
	s.vecPool.Start()
	s.sweeper.Start()

	ctx, cancel := context.WithCancel(context.Background())
	s.bg, _ = errgroup.WithContext(ctx)
	s.bgCancel = cancel

	if s.admin != nil {
		s.bg.Go(func() error { return s.admin.Run(ctx) })
	}
	if s.cfg.EnablePersist && s.cfg.SaveInterval > 0 {
		s.bg.Go(func() error {
			s.snapshotLoop(ctx)
			return nil
		})
	}

	return s.acceptLoop()
}

func (s *Server) acceptLoop() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.isRunning() {
				return nil
			}
			s.logger.Error("accept error", zap.Error(err))
			continue
		}

		s.metrics.RecordConnection()
		s.trackConn(conn, true)
		s.connWG.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) trackConn(conn net.Conn, add bool) {
	s.mu.Lock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
	s.mu.Unlock()
}

func (s *Server) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// snapshotLoop writes a periodic snapshot of the store.
func (s *Server) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.writeSnapshot()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) writeSnapshot() {
	entries := s.store.Snapshot()
	if err := WriteSnapshot(s.snapshotPath(), entries); err != nil {
		s.logger.Error("snapshot failed", zap.Error(err))
		return
	}
	s.logger.Info("snapshot written", zap.Int("entries", len(entries)))
}

// Stop shuts the server down: stop accepting, drain the queues, stop the
// pools and background tasks, and write a final snapshot when persistence
// is on.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}

	// Force idle connections off so shutdown cannot hang on a silent
	// peer. In-flight commands still drain: the queues close only after
	// every connection goroutine has exited.
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.connWG.Wait()

	// Queues close after the last connection goroutine exits, so every
	// enqueued item still reaches a worker.
	s.kvQueue.Close()
	s.vecQueue.Close()
	s.kvPool.Wait()
	s.vecPool.Wait()

	s.sweeper.Stop()

	if s.bgCancel != nil {
		s.bgCancel()
		s.bg.Wait()
	}

	if s.cfg.EnablePersist {
		s.writeSnapshot()
		if s.aof != nil {
			if err := s.aof.Close(); err != nil {
				s.logger.Error("aof close failed", zap.Error(err))
			}
		}
	}

	s.logger.Info("celrix server stopped")
}

// handleConn runs one connection: read frames, parse, dispatch, await the
// reply, write the response. Each command's reply is awaited before the
// next frame is processed, so responses are strictly in request order.
func (s *Server) handleConn(conn net.Conn) {
	defer s.connWG.Done()
	defer s.trackConn(conn, false)
	defer conn.Close()

	log := s.logger.With(
		zap.String("conn", xid.New().String()),
		zap.String("peer", conn.RemoteAddr().String()))
	log.Debug("connection opened")

	dec := NewDecoder(s.cfg.MaxPayload)
	readBuf := make([]byte, 4096)

	for {
		n, err := conn.Read(readBuf)
		if n > 0 {
			dec.Feed(readBuf[:n])

			for {
				frame, derr := dec.Next()
				if derr != nil {
					// Unrecoverable codec state: resynchronizing inside a
					// byte stream is not possible.
					log.Warn("closing connection",
						zap.String("kind", errKind(derr).String()),
						zap.Error(derr))
					return
				}
				if frame == nil {
					break
				}
				if !s.serveFrame(conn, frame, log) {
					return
				}
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				if cerr := dec.CloseCheck(); cerr != nil {
					log.Warn("peer closed mid-frame", zap.Error(cerr))
				} else {
					log.Debug("connection closed")
				}
			} else {
				log.Debug("read error", zap.Error(err))
			}
			return
		}
	}
}

// serveFrame processes one request frame end to end. Returns false when
// the connection must close.
func (s *Server) serveFrame(conn net.Conn, frame *Frame, log *zap.Logger) bool {
	cmd, err := ParseCommand(frame)
	if err != nil {
		// Parse failures answer on the same request id and keep the
		// connection alive.
		return s.writeResponse(conn, respError(err.Error()), frame.RequestID, log)
	}

	item, backpressure, ok := s.disp.Dispatch(cmd, frame.RequestID)
	if !ok {
		return s.writeResponse(conn, backpressure, frame.RequestID, log)
	}

	resp, ok := <-item.Reply
	if !ok {
		resp = respError("worker error")
	}
	return s.writeResponse(conn, resp, frame.RequestID, log)
}

func (s *Server) writeResponse(conn net.Conn, resp Response, requestID uint64, log *zap.Logger) bool {
	buf := s.bufPool.Get()
	buf = resp.ToFrame(requestID).AppendEncode(buf)
	_, err := conn.Write(buf)
	s.bufPool.Put(buf)

	if err != nil {
		log.Debug("write error", zap.Error(err))
		return false
	}
	return true
}
