package bus

import "sync"

type partitionKey struct {
	topic     string
	partition int
}

type pending struct {
	msg  *Message
	done bool
}

// tracker remembers in-flight offsets per partition and releases only the
// contiguous completed prefix for commit.
type tracker struct {
	mu    sync.Mutex
	parts map[partitionKey]*partitionState
}

type partitionState struct {
	queue []*pending
	index map[int64]*pending
}

func newTracker() *tracker {
	return &tracker{parts: make(map[partitionKey]*partitionState)}
}

// track registers a fetched message. Offsets arrive in increasing order per
// partition; an offset at or below the last tracked one means the partition
// was rewound (rebalance) and its state starts over.
func (t *tracker) track(msg *Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := partitionKey{msg.Topic, msg.Partition}
	st, ok := t.parts[key]
	if ok && len(st.queue) > 0 && msg.Offset <= st.queue[len(st.queue)-1].msg.Offset {
		ok = false
	}
	if !ok {
		st = &partitionState{index: make(map[int64]*pending)}
		t.parts[key] = st
	}
	p := &pending{msg: msg}
	st.queue = append(st.queue, p)
	st.index[msg.Offset] = p
}

// done marks msg complete and returns the highest message whose offset and
// all earlier tracked offsets are complete, or nil if the prefix did not move.
func (t *tracker) done(msg *Message) *Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.parts[partitionKey{msg.Topic, msg.Partition}]
	if !ok {
		return nil
	}
	p, ok := st.index[msg.Offset]
	if !ok || p.msg != msg {
		return nil
	}
	p.done = true

	var commit *Message
	for len(st.queue) > 0 && st.queue[0].done {
		commit = st.queue[0].msg
		delete(st.index, commit.Offset)
		st.queue = st.queue[1:]
	}
	return commit
}

// inFlight returns the number of tracked messages not yet released.
func (t *tracker) inFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, st := range t.parts {
		n += len(st.queue)
	}
	return n
}
