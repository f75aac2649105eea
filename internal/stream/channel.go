package stream

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/metalbox-io/sonic-manager/internal/config"
	"go.uber.org/zap"
)

// PlayRecapMarker in task output signals that the remote play has
// reached its recap; completion may still lag behind it.
const PlayRecapMarker = "PLAY RECAP"

// Channel multiplexes free-form task output, a completion code, and an
// end-of-stream marker over one append-only log per task id. One
// producer and one blocking consumer per task id, enforced by the
// caller; task ids are single-use.
//
// A channel without a log connection is a valid no-op: pushes and
// finishes do nothing and Fetch returns 0 immediately.
type Channel struct {
	log    Log // nil when the log connection failed at startup
	logger *zap.Logger
}

// New connects to the task log and returns the channel. Connection or
// liveness failure degrades to a no-op channel; producing output must
// never crash the caller.
func New(cfg config.StreamConfig, logger *zap.Logger) *Channel {
	log, err := connect(cfg, logger)
	if err != nil {
		logger.Error("Task log unavailable, telemetry channel degraded to no-op", zap.Error(err))
		return &Channel{logger: logger}
	}
	return &Channel{log: log, logger: logger}
}

// NewWithLog wraps an existing log. Used by tests and alternative
// backends.
func NewWithLog(log Log, logger *zap.Logger) *Channel {
	return &Channel{log: log, logger: logger}
}

// Connected reports whether the channel has a live log connection
func (c *Channel) Connected() bool {
	return c.log != nil
}

// Close releases the log connection
func (c *Channel) Close() {
	if c.log != nil {
		c.log.Close()
	}
}

// Push appends one line of task output. Failures are logged and
// swallowed.
func (c *Channel) Push(taskID, line string) {
	if c.log == nil {
		return
	}
	if err := c.log.Append(taskID, Entry{Type: TypeStdout, Content: line}); err != nil {
		c.logger.Error("Failed to push task output",
			zap.String("task_id", taskID),
			zap.Error(err))
	}
}

// Finish marks the task complete: an rc entry followed by the quit
// action, strictly in that order. The consumer relies on rc having been
// recorded before it observes quit.
func (c *Channel) Finish(taskID string, rc int) {
	if c.log == nil {
		return
	}
	if err := c.log.Append(taskID, Entry{Type: TypeRC, Content: strconv.Itoa(rc)}); err != nil {
		c.logger.Error("Failed to record task return code",
			zap.String("task_id", taskID),
			zap.Error(err))
	}
	if err := c.log.Append(taskID, Entry{Type: TypeAction, Content: ActionQuit}); err != nil {
		c.logger.Error("Failed to record task termination",
			zap.String("task_id", taskID),
			zap.Error(err))
	}
}

// FetchOptions tunes the consumer loop
type FetchOptions struct {
	// PlayRecapDetection emits an informational notice when output
	// contains the PLAY RECAP marker, telling the caller to keep
	// waiting instead of aborting.
	PlayRecapDetection bool
}

// Cursor is the resume position in a task's log: the id of the last
// consumed entry, 0 meaning "from the beginning".
type Cursor uint64

// fetchState drives the consumer loop
type fetchState int

const (
	stateAwaiting fetchState = iota
	stateProcessing
	stateTerminal
)

// Fetch blocks until the task's output stream signals completion and
// returns the task's return code.
//
// The timeout is idle-based: every received entry re-arms the deadline,
// so a slow-but-steady producer is never timed out mid-stream. When the
// deadline elapses without a quit action, or the log becomes
// unreachable mid-read, Fetch returns the best-known return code
// (default 0) instead of failing; the remote task's actual exit status
// may be unknown at that point and 0 is indistinguishable from genuine
// success by design.
//
// Output lines are written to out verbatim, with no added newlines.
// Every consumed entry is deleted from the log: the log is a mailbox,
// not a durable history.
func (c *Channel) Fetch(taskID string, timeout time.Duration, out io.Writer, opts FetchOptions) int {
	rc := 0

	if c.log == nil {
		return rc
	}

	consumer, err := c.log.Consume(taskID)
	if err != nil {
		c.logger.Error("Failed to open task output consumer",
			zap.String("task_id", taskID),
			zap.Error(err))
		return rc
	}
	defer consumer.Close()

	state := stateAwaiting
	cursor := Cursor(0)
	deadline := time.Now().Add(timeout)

	for state != stateTerminal && time.Now().Before(deadline) {
		entry, err := consumer.Next(timeout)
		if errors.Is(err, ErrNoEntry) {
			continue // deadline check decides whether to keep waiting
		}
		if err != nil {
			c.logger.Warn("Task log unreachable mid-fetch, returning best-known return code",
				zap.String("task_id", taskID),
				zap.Int("rc", rc),
				zap.Error(err))
			break
		}

		state = stateProcessing
		cursor = Cursor(entry.ID)
		deadline = time.Now().Add(timeout)

		// Consumption is destructive: delete before dispatch so a
		// repeated fetch never replays the entry's side effect.
		if err := consumer.Delete(entry.ID); err != nil {
			c.logger.Warn("Failed to delete consumed entry",
				zap.String("task_id", taskID),
				zap.Uint64("entry_id", uint64(cursor)),
				zap.Error(err))
		}

		switch entry.Type {
		case TypeStdout:
			if _, err := io.WriteString(out, entry.Content); err != nil {
				c.logger.Warn("Failed to write task output",
					zap.String("task_id", taskID),
					zap.Error(err))
			}
			if opts.PlayRecapDetection && strings.Contains(entry.Content, PlayRecapMarker) {
				c.logger.Info("Play recap marker seen, completion may lag behind it; continuing to wait",
					zap.String("task_id", taskID))
			}
		case TypeRC:
			parsed, err := strconv.Atoi(strings.TrimSpace(entry.Content))
			if err != nil {
				c.logger.Error("Non-integer return code in task log, keeping default",
					zap.String("task_id", taskID),
					zap.String("content", entry.Content))
			} else {
				rc = parsed
			}
		case TypeAction:
			if entry.Content == ActionQuit {
				state = stateTerminal
				continue
			}
			c.logger.Error("Unknown action in task log",
				zap.String("task_id", taskID),
				zap.String("content", entry.Content))
		default:
			// push/finish never produce other types; seeing one is an
			// invariant violation worth logging, not a reason to stop.
			c.logger.Error("Unknown entry type in task log",
				zap.String("task_id", taskID),
				zap.Uint64("entry_id", uint64(cursor)),
				zap.String("type", entry.Type))
		}

		state = stateAwaiting
	}

	return rc
}
