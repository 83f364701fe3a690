package main

// Dispatcher classifies commands onto the two pools' queues. Vector work
// is compute-heavy and must not sit in front of light KV traffic, so VADD
// and VSEARCH get their own queue; everything else goes to the KV queue.
type Dispatcher struct {
	kv     *CommandQueue
	vector *CommandQueue
}

// NewDispatcher routes between the two queues.
func NewDispatcher(kv, vector *CommandQueue) *Dispatcher {
	return &Dispatcher{kv: kv, vector: vector}
}

// queueFor selects the target queue by opcode.
func (d *Dispatcher) queueFor(op OpCode) *CommandQueue {
	switch op {
	case OpVAdd, OpVSearch:
		return d.vector
	default:
		return d.kv
	}
}

// Dispatch enqueues the command and returns its work item. When the
// target queue is full it returns an immediate backpressure response
// instead; the connection's read loop never blocks on a saturated pool.
func (d *Dispatcher) Dispatch(cmd *Command, requestID uint64) (WorkItem, Response, bool) {
	item := NewWorkItem(cmd, requestID)
	if err := d.queueFor(cmd.Op).TrySend(item); err != nil {
		return WorkItem{}, respError("queue full"), false
	}
	return item, Response{}, true
}
