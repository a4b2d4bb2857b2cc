package channel

import "github.com/cordio/amqp91/future"

type trackerKey struct {
	classID  uint16
	methodID uint16
}

// tracker is one outstanding synchronous method call waiting for its
// reply, queued FIFO per (class_id, method_id).
type tracker struct {
	key  trackerKey
	sink future.Sink
}

// trackerQueue holds one channel's in-flight trackers, FIFO within each
// key.
type trackerQueue struct {
	byKey map[trackerKey][]*tracker
}

func newTrackerQueue() *trackerQueue {
	return &trackerQueue{byKey: make(map[trackerKey][]*tracker)}
}

func (q *trackerQueue) push(t *tracker) {
	q.byKey[t.key] = append(q.byKey[t.key], t)
}

// pop removes and returns the oldest tracker for key, if any.
func (q *trackerQueue) pop(key trackerKey) (*tracker, bool) {
	list := q.byKey[key]
	if len(list) == 0 {
		return nil, false
	}
	t := list[0]
	if len(list) == 1 {
		delete(q.byKey, key)
	} else {
		q.byKey[key] = list[1:]
	}
	return t, true
}

// failAll fails every still-queued tracker with err and empties the
// queue, used when the owning scope closes.
func (q *trackerQueue) failAll(err error) []*tracker {
	var all []*tracker
	for key, list := range q.byKey {
		all = append(all, list...)
		delete(q.byKey, key)
	}
	for _, t := range all {
		t.sink.Fail(err)
	}
	return all
}
