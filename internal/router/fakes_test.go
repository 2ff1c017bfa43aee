package router

import (
	"context"
	"sync"
	"time"

	"kafkarouter/pkg/types"
)

type pollResult struct {
	rec *types.Record
	err error
}

// fakeConsumer replays queued poll results. Once the queue is drained every
// poll advances the clock by the poll timeout and calls onIdle.
type fakeConsumer struct {
	mu         sync.Mutex
	queue      []pollResult
	clock      *fakeClock
	onIdle     func(idlePolls int)
	idlePolls  int
	subscribed []string
	committed  []*types.Record
	commitErr  error
	closed     bool
}

func (c *fakeConsumer) Subscribe(topics []string) error {
	c.subscribed = topics
	return nil
}

func (c *fakeConsumer) Poll(ctx context.Context, timeout time.Duration) (*types.Record, error) {
	c.mu.Lock()
	if len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()
		return next.rec, next.err
	}
	c.idlePolls++
	idle := c.idlePolls
	c.mu.Unlock()

	if c.clock != nil {
		c.clock.Advance(timeout)
	}
	if c.onIdle != nil {
		c.onIdle(idle)
	}
	return nil, nil
}

func (c *fakeConsumer) Commit(ctx context.Context, rec *types.Record) error {
	if c.commitErr != nil {
		return c.commitErr
	}
	c.committed = append(c.committed, rec)
	return nil
}

func (c *fakeConsumer) Close() error {
	c.closed = true
	return nil
}

type produced struct {
	topic   string
	value   []byte
	key     []byte
	headers types.Headers
}

type fakeProducer struct {
	messages  []produced
	flushes   int
	err       error
	onProduce func()
}

func (p *fakeProducer) Produce(ctx context.Context, topic string, value, key []byte, headers types.Headers) error {
	if p.onProduce != nil {
		p.onProduce()
	}
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, produced{topic: topic, value: value, key: key, headers: headers})
	return nil
}

func (p *fakeProducer) Flush(ctx context.Context) error {
	p.flushes++
	return nil
}

type fakeMetrics struct {
	consumed, committed, produced, unrouted int
	observations                            []time.Duration
}

func (m *fakeMetrics) MessageConsumed()  { m.consumed++ }
func (m *fakeMetrics) MessageCommitted() { m.committed++ }
func (m *fakeMetrics) MessageProduced()  { m.produced++ }
func (m *fakeMetrics) MessageUnrouted()  { m.unrouted++ }
func (m *fakeMetrics) ObserveProcessingTime(d time.Duration) {
	m.observations = append(m.observations, d)
}

type fakeNotifier struct {
	notices []types.DeadLetterNotice
	err     error
}

func (n *fakeNotifier) NotifyDeadLetter(ctx context.Context, notice types.DeadLetterNotice) error {
	n.notices = append(n.notices, notice)
	return n.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
