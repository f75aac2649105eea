package stream

import (
	"errors"
	"sync"
	"time"
)

// memLog is an in-memory Log used to exercise the consumer loop
// without a running log server
type memLog struct {
	mu      sync.Mutex
	seq     map[string]uint64
	entries map[string][]StoredEntry
	notify  map[string]chan struct{}

	appendErr error // returned by Append when set
	deleted   int   // entries deleted by consumers

	// breakAfter makes consumers fail with a connectivity error once
	// this many entries have been read (0 = never)
	breakAfter int
	reads      int
}

var errLogGone = errors.New("log connection lost")

func newMemLog() *memLog {
	return &memLog{
		seq:     make(map[string]uint64),
		entries: make(map[string][]StoredEntry),
		notify:  make(map[string]chan struct{}),
	}
}

func (l *memLog) notifyChan(taskID string) chan struct{} {
	if l.notify[taskID] == nil {
		l.notify[taskID] = make(chan struct{}, 1)
	}
	return l.notify[taskID]
}

func (l *memLog) Append(taskID string, entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.appendErr != nil {
		return l.appendErr
	}

	l.seq[taskID]++
	l.entries[taskID] = append(l.entries[taskID], StoredEntry{ID: l.seq[taskID], Entry: entry})

	select {
	case l.notifyChan(taskID) <- struct{}{}:
	default:
	}
	return nil
}

func (l *memLog) Consume(taskID string) (Consumer, error) {
	return &memConsumer{log: l, taskID: taskID}, nil
}

func (l *memLog) Close() {}

func (l *memLog) remaining(taskID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries[taskID])
}

type memConsumer struct {
	log    *memLog
	taskID string
	cursor uint64
}

func (c *memConsumer) Next(wait time.Duration) (*StoredEntry, error) {
	deadline := time.Now().Add(wait)

	for {
		c.log.mu.Lock()
		if c.log.breakAfter > 0 && c.log.reads >= c.log.breakAfter {
			c.log.mu.Unlock()
			return nil, errLogGone
		}
		for _, e := range c.log.entries[c.taskID] {
			if e.ID > c.cursor {
				entry := e
				c.cursor = e.ID
				c.log.reads++
				c.log.mu.Unlock()
				return &entry, nil
			}
		}
		ch := c.log.notifyChan(c.taskID)
		c.log.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrNoEntry
		}
		select {
		case <-ch:
		case <-time.After(remaining):
			return nil, ErrNoEntry
		}
	}
}

func (c *memConsumer) Delete(id uint64) error {
	c.log.mu.Lock()
	defer c.log.mu.Unlock()

	entries := c.log.entries[c.taskID]
	for i, e := range entries {
		if e.ID == id {
			c.log.entries[c.taskID] = append(entries[:i:i], entries[i+1:]...)
			c.log.deleted++
			return nil
		}
	}
	return errors.New("entry not found")
}

func (c *memConsumer) Close() error { return nil }
