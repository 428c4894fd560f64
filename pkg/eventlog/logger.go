package eventlog

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getmockd/mocklane/pkg/logging"
)

// DefaultSubscriberBuffer is the per-subscriber channel size.
const DefaultSubscriberBuffer = 256

// Options configures a Logger.
type Options struct {
	// Capacity is the ring buffer size. Default: DefaultCapacity.
	Capacity int

	// MinLevel drops events below it before any sink sees them.
	MinLevel logging.Level

	// Console mirrors each accepted event. Nil disables mirroring.
	Console *slog.Logger

	// File is an optional JSON-lines sink owned by the Logger.
	File *FileSink

	// Errors receives sink failures. Default: logging.Nop().
	Errors *slog.Logger

	// SubscriberBuffer is the live channel size per subscriber.
	// Default: DefaultSubscriberBuffer.
	SubscriberBuffer int

	// OnDrop is called once per event dropped for a slow subscriber.
	OnDrop func()

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Logger records events into a ring buffer, mirrors them to the console and
// an optional file, and fans them out to live subscribers.
type Logger struct {
	mu       sync.Mutex
	ring     *Ring
	subs     map[*Subscription]struct{}
	closed   bool
	minLevel logging.Level
	console  *slog.Logger
	file     *FileSink
	errs     *slog.Logger
	subBuf   int
	onDrop   func()
	now      func() time.Time
}

// New creates a Logger.
func New(opts Options) *Logger {
	l := &Logger{
		ring:     NewRing(opts.Capacity),
		subs:     make(map[*Subscription]struct{}),
		minLevel: opts.MinLevel,
		console:  opts.Console,
		file:     opts.File,
		errs:     opts.Errors,
		subBuf:   opts.SubscriberBuffer,
		onDrop:   opts.OnDrop,
		now:      opts.Now,
	}
	if l.errs == nil {
		l.errs = logging.Nop()
	}
	if l.subBuf <= 0 {
		l.subBuf = DefaultSubscriberBuffer
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// MinLevel returns the configured minimum level.
func (l *Logger) MinLevel() logging.Level {
	return l.minLevel
}

// Capacity returns the ring buffer capacity.
func (l *Logger) Capacity() int {
	return l.ring.Cap()
}

// FilePath returns the file sink path, or "" without a file sink.
func (l *Logger) FilePath() string {
	if l.file == nil {
		return ""
	}
	return l.file.Path()
}

// Log records an event and returns it, or returns nil when the level is
// filtered out. It never blocks on subscribers.
func (l *Logger) Log(level logging.Level, name string, fields Fields) *Event {
	if level < l.minLevel {
		return nil
	}
	e := &Event{Time: l.now(), Level: level, Name: name, Fields: fields}

	dropped := 0
	l.mu.Lock()
	writeFile := l.file != nil && !l.closed
	l.ring.Push(e)
	for sub := range l.subs {
		select {
		case sub.ch <- e:
		default:
			sub.dropped.Add(1)
			dropped++
		}
	}
	l.mu.Unlock()

	if l.onDrop != nil {
		for range dropped {
			l.onDrop()
		}
	}

	l.mirror(e)
	if writeFile {
		line, _ := e.MarshalJSON()
		if err := l.file.Write(append(line, '\n')); err != nil {
			l.errs.Warn("log file write failed", "path", l.file.Path(), "error", err)
		}
	}
	return e
}

// Debug logs at debug level.
func (l *Logger) Debug(name string, fields Fields) *Event {
	return l.Log(logging.LevelDebug, name, fields)
}

// Info logs at info level.
func (l *Logger) Info(name string, fields Fields) *Event {
	return l.Log(logging.LevelInfo, name, fields)
}

// Warn logs at warn level.
func (l *Logger) Warn(name string, fields Fields) *Event {
	return l.Log(logging.LevelWarn, name, fields)
}

// Error logs at error level.
func (l *Logger) Error(name string, fields Fields) *Event {
	return l.Log(logging.LevelError, name, fields)
}

func (l *Logger) mirror(e *Event) {
	if l.console == nil {
		return
	}
	ctx := context.Background()
	if !l.console.Enabled(ctx, e.Level) {
		return
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, e.Fields[k]))
	}
	l.console.LogAttrs(ctx, e.Level, e.Name, attrs...)
}

// Recent returns up to n of the newest buffered events, oldest first.
// n <= 0 returns the whole buffer.
func (l *Logger) Recent(n int) []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ring.Last(n)
}

// Len returns the number of buffered events.
func (l *Logger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ring.Len()
}

// Subscribe registers a live subscriber. The newest replay events are
// captured in the same critical section that registers the subscriber, so
// every later event arrives on the channel exactly once and nothing between
// the replay and the first live event is lost.
func (l *Logger) Subscribe(replay int) *Subscription {
	sub := &Subscription{
		ch: make(chan *Event, l.subBuf),
		l:  l,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if replay > 0 {
		sub.replay = l.ring.Last(replay)
	}
	if l.closed {
		close(sub.ch)
		sub.done = true
		return sub
	}
	l.subs[sub] = struct{}{}
	return sub
}

// SubscriberCount returns the number of live subscribers.
func (l *Logger) SubscriberCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

func (l *Logger) unsubscribe(sub *Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if sub.done {
		return
	}
	delete(l.subs, sub)
	close(sub.ch)
	sub.done = true
}

// Close ends every subscription and closes the file sink. Events logged
// afterwards still reach the buffer and console.
func (l *Logger) Close() error {
	l.mu.Lock()
	for sub := range l.subs {
		close(sub.ch)
		sub.done = true
	}
	clear(l.subs)
	l.closed = true
	l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Subscription is a live event feed. Read Replay first, then Events.
type Subscription struct {
	ch      chan *Event
	replay  []*Event
	l       *Logger
	dropped atomic.Uint64
	done    bool // guarded by l.mu
}

// Replay returns the events captured at subscription time, oldest first.
func (s *Subscription) Replay() []*Event {
	return s.replay
}

// Events returns the live channel. It is closed by Close or Logger.Close.
func (s *Subscription) Events() <-chan *Event {
	return s.ch
}

// Dropped returns how many live events were skipped because the channel was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unregisters the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Close() {
	s.l.unsubscribe(s)
}
