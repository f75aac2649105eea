package stream

import (
	"errors"
	"time"
)

// Entry is the wire shape of one task output record: a flat two-field
// key/value document.
type Entry struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Entry types and the termination action
const (
	TypeStdout = "stdout"
	TypeRC     = "rc"
	TypeAction = "action"

	ActionQuit = "quit"
)

// StoredEntry is an entry as read back from the log, carrying the
// log-assigned monotonic id used as the resume cursor.
type StoredEntry struct {
	ID uint64
	Entry
}

// ErrNoEntry is returned by Consumer.Next when the wait bound elapses
// before a new entry arrives.
var ErrNoEntry = errors.New("no entry within wait bound")

// Log is an append-only per-task message log. Entries within one task
// id form a single producer-ordered sequence with monotonically
// increasing ids.
type Log interface {
	// Append adds an entry to the task's log.
	Append(taskID string, entry Entry) error

	// Consume opens a single-consumer view over the task's log,
	// positioned before the first entry.
	Consume(taskID string) (Consumer, error)

	// Close releases the log connection.
	Close()
}

// Consumer reads a task's log in entry-id order, one entry at a time.
// Entries are delivered at-least-once until deleted; the caller must
// delete each entry immediately after processing it.
type Consumer interface {
	// Next blocks for up to wait for the next entry. Returns ErrNoEntry
	// when the bound elapses, any other error when the log became
	// unreachable.
	Next(wait time.Duration) (*StoredEntry, error)

	// Delete removes the entry with the given id from the log.
	Delete(id uint64) error

	// Close releases the consumer.
	Close() error
}
