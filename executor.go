package main

import (
	"errors"
	"strconv"
	"time"
)

// Executor runs parsed commands against the shared store and semantic
// cache. Workers in both pools call Execute; the dispatcher decides which
// pool sees which opcode. When an AOF is attached, mutations are logged
// before the reply is produced.
type Executor struct {
	store *Store
	cache *SemanticCache
	aof   *AofWriter // nil when persistence is off
}

// NewExecutor wires an executor to its state.
func NewExecutor(store *Store, cache *SemanticCache, aof *AofWriter) *Executor {
	return &Executor{store: store, cache: cache, aof: aof}
}

// Execute runs one command and returns its response. Every accepted
// command produces exactly one response.
func (e *Executor) Execute(cmd *Command) Response {
	switch cmd.Op {
	case OpPing:
		return respPong()

	case OpGet:
		value, ok := e.store.Get(cmd.Key)
		if !ok {
			return respNil()
		}
		return respValue(value)

	case OpSet:
		ttl := time.Duration(cmd.TTL) * time.Second
		e.store.Set(cmd.Key, cmd.Value, ttl)
		e.logSet(cmd.Key, cmd.Value, ttl)
		return respOK()

	case OpDel:
		existed := e.store.Del(cmd.Key)
		if existed {
			e.logDel(cmd.Key)
		}
		return respInteger(boolInt(existed))

	case OpExists:
		return respInteger(boolInt(e.store.Exists(cmd.Key)))

	case OpMGet:
		items := make([][]byte, len(cmd.Keys))
		for i, key := range cmd.Keys {
			if value, ok := e.store.Get(key); ok {
				items[i] = value
			} else {
				items[i] = []byte{}
			}
		}
		return respArray(items)

	case OpMSet:
		for _, pair := range cmd.Pairs {
			e.store.Set(pair.Key, pair.Value, 0)
			e.logSet(pair.Key, pair.Value, 0)
		}
		return respOK()

	case OpMDel:
		var deleted int64
		for _, key := range cmd.Keys {
			if e.store.Del(key) {
				e.logDel(key)
				deleted++
			}
		}
		return respInteger(deleted)

	case OpIncr:
		return e.incrBy(cmd.Key, 1)

	case OpDecr:
		return e.incrBy(cmd.Key, -1)

	case OpIncrBy:
		return e.incrBy(cmd.Key, cmd.Delta)

	case OpDecrBy:
		return e.incrBy(cmd.Key, -cmd.Delta)

	case OpScan:
		return e.scan(cmd.Cursor, string(cmd.Pattern), cmd.Count)

	case OpKeys:
		pattern := string(cmd.Pattern)
		var items [][]byte
		for _, key := range e.store.SortedKeys() {
			if matchPattern(pattern, key) {
				items = append(items, []byte(key))
			}
		}
		return respArray(items)

	case OpVAdd:
		// The wire form carries no separate value; the key doubles as the
		// stored payload.
		if err := e.cache.Set(cmd.Key, cmd.Vector, cmd.Key, ""); err != nil {
			return respError(err.Error())
		}
		return respOK()

	case OpVSearch:
		results, err := e.cache.SearchK(cmd.Vector, int(cmd.K))
		if err != nil {
			return respError(err.Error())
		}
		items := make([][]byte, len(results))
		for i, res := range results {
			items[i] = []byte(res.Key)
		}
		return respArray(items)

	default:
		return respError("unknown command")
	}
}

func (e *Executor) incrBy(key []byte, delta int64) Response {
	value, err := e.store.IncrBy(key, delta)
	if err != nil {
		var kerr *Error
		if errors.As(err, &kerr) {
			return respError(kerr.Msg)
		}
		return respError(err.Error())
	}
	e.logSet(key, []byte(strconv.FormatInt(value, 10)), 0)
	return respInteger(value)
}

// scan pages through the sorted keyspace. The reply is an ARRAY whose
// first item is the next cursor in decimal (0 = done) followed by the
// matching keys.
func (e *Executor) scan(cursor uint64, pattern string, count uint32) Response {
	if count == 0 {
		count = 10
	}

	keys := e.store.SortedKeys()
	start := int(cursor)
	if start >= len(keys) {
		return respArray([][]byte{[]byte("0")})
	}

	end := start + int(count)
	var next uint64
	if end >= len(keys) {
		end = len(keys)
	} else {
		next = uint64(end)
	}

	items := [][]byte{[]byte(strconv.FormatUint(next, 10))}
	for _, key := range keys[start:end] {
		if matchPattern(pattern, key) {
			items = append(items, []byte(key))
		}
	}
	return respArray(items)
}

func (e *Executor) logSet(key, value []byte, ttl time.Duration) {
	if e.aof != nil {
		e.aof.LogSet(key, value, ttl)
	}
}

func (e *Executor) logDel(key []byte) {
	if e.aof != nil {
		e.aof.LogDel(key)
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
