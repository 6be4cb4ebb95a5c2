package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrQueueFull      = errors.New("audit queue full")
	ErrClosed         = errors.New("audit writer closed")
	ErrNotStarted     = errors.New("audit writer not started")
	ErrAlreadyStarted = errors.New("audit writer already started")
)

const (
	defaultQueueSize  = 1024
	defaultBufferSize = 64 * 1024
)

// Config controls the audit log writer.
type Config struct {
	Path          string
	QueueSize     int
	BufferSize    int
	FlushInterval time.Duration
	SyncInterval  time.Duration
}

// DefaultConfig returns a baseline configuration for one agent's log.
func DefaultConfig(path string) Config {
	return Config{
		Path:          path,
		QueueSize:     defaultQueueSize,
		BufferSize:    defaultBufferSize,
		FlushInterval: time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("invalid audit config: Path is empty")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("invalid audit config: QueueSize must be > 0")
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("invalid audit config: BufferSize must be > 0")
	}
	if c.FlushInterval < 0 {
		return fmt.Errorf("invalid audit config: FlushInterval must be >= 0")
	}
	if c.SyncInterval < 0 {
		return fmt.Errorf("invalid audit config: SyncInterval must be >= 0")
	}
	return nil
}

// Writer appends audit records as JSON lines from a buffered queue. Appends
// never block the decision loop: a full queue drops with ErrQueueFull and
// the caller counts it.
type Writer struct {
	cfg Config
	ch  chan Record
	wg  sync.WaitGroup
	err atomic.Value

	started uint32
	closed  uint32
}

// NewWriter creates an audit writer and ensures the target directory exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	return &Writer{
		cfg: cfg,
		ch:  make(chan Record, cfg.QueueSize),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&w.started, 0, 1) {
		return ErrAlreadyStarted
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	return nil
}

// Close stops the writer and flushes any buffered data.
func (w *Writer) Close() error {
	if atomic.CompareAndSwapUint32(&w.closed, 0, 1) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first error observed by the writer, if any.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// TryAppend enqueues a record without blocking.
func (w *Writer) TryAppend(rec Record) error {
	if atomic.LoadUint32(&w.closed) != 0 {
		return ErrClosed
	}
	if atomic.LoadUint32(&w.started) == 0 {
		return ErrNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}
	select {
	case w.ch <- rec:
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *Writer) run(ctx context.Context) {
	file, err := os.OpenFile(w.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		w.setErr(err)
		return
	}
	buf := bufio.NewWriterSize(file, w.cfg.BufferSize)

	var (
		flushC      <-chan time.Time
		syncC       <-chan time.Time
		flushTicker *time.Ticker
		syncTicker  *time.Ticker
	)
	if w.cfg.FlushInterval > 0 {
		flushTicker = time.NewTicker(w.cfg.FlushInterval)
		flushC = flushTicker.C
	}
	if w.cfg.SyncInterval > 0 {
		syncTicker = time.NewTicker(w.cfg.SyncInterval)
		syncC = syncTicker.C
	}

	defer func() {
		if flushTicker != nil {
			flushTicker.Stop()
		}
		if syncTicker != nil {
			syncTicker.Stop()
		}
		if err := buf.Flush(); err != nil {
			w.setErr(err)
		}
		if err := file.Sync(); err != nil {
			w.setErr(err)
		}
		if err := file.Close(); err != nil {
			w.setErr(err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.drainNonBlocking(buf)
			return
		case rec, ok := <-w.ch:
			if !ok {
				return
			}
			if err := writeRecord(buf, rec); err != nil {
				w.setErr(err)
				return
			}
		case <-flushC:
			if err := buf.Flush(); err != nil {
				w.setErr(err)
				return
			}
		case <-syncC:
			if err := buf.Flush(); err != nil {
				w.setErr(err)
				return
			}
			if err := file.Sync(); err != nil {
				w.setErr(err)
				return
			}
		}
	}
}

func (w *Writer) drainNonBlocking(buf *bufio.Writer) {
	for {
		select {
		case rec, ok := <-w.ch:
			if !ok {
				return
			}
			if err := writeRecord(buf, rec); err != nil {
				w.setErr(err)
				return
			}
		default:
			return
		}
	}
}

func writeRecord(buf *bufio.Writer, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := buf.Write(data); err != nil {
		return err
	}
	return buf.WriteByte('\n')
}

func (w *Writer) setErr(err error) {
	if err == nil {
		return
	}
	if w.err.Load() != nil {
		return
	}
	w.err.Store(err)
}
