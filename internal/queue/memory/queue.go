// Package memory provides a queue implementation for local development
// and tests.
package memory

import (
	"context"
	"errors"
	"sync"
)

// Message is one published message captured by the in-memory queue.
type Message struct {
	Data       []byte
	Attributes map[string]string
}

// Queue records published messages so tests can assert on exactly what
// the publisher sent.
type Queue struct {
	mu       sync.Mutex
	messages []Message
	closed   bool
	failNext error
}

// NewQueue constructs an empty in-memory queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Publish records the message. It copies data so later mutation by the
// caller cannot change what was "sent".
func (q *Queue) Publish(_ context.Context, data []byte, attributes map[string]string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.New("queue closed")
	}
	if q.failNext != nil {
		err := q.failNext
		q.failNext = nil
		return err
	}
	attrs := make(map[string]string, len(attributes))
	for k, v := range attributes {
		attrs[k] = v
	}
	q.messages = append(q.messages, Message{
		Data:       append([]byte(nil), data...),
		Attributes: attrs,
	})
	return nil
}

// FailNext makes the next Publish call return err.
func (q *Queue) FailNext(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failNext = err
}

// Messages returns a copy of everything published so far.
func (q *Queue) Messages() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Message, len(q.messages))
	copy(out, q.messages)
	return out
}

// Close marks the queue closed; further publishes fail.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
