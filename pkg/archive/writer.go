package archive

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/valentinpelus/posturewatch/pkg/types"
)

// Inserter persists a batch of entries
type Inserter interface {
	Insert(ctx context.Context, sessionID string, entries []types.FeedbackEntry) error
}

type batch struct {
	sessionID string
	entries   []types.FeedbackEntry
}

// Writer queues entries and inserts them from a single goroutine, so
// recording never blocks the capture loop.
type Writer struct {
	store   Inserter
	queue   chan batch
	timeout time.Duration

	written atomic.Uint64
	dropped atomic.Uint64
}

// NewWriter creates a writer with room for size pending batches
func NewWriter(store Inserter, size int) *Writer {
	if size <= 0 {
		size = 256
	}
	return &Writer{
		store:   store,
		queue:   make(chan batch, size),
		timeout: 5 * time.Second,
	}
}

// Record queues entries for insertion. When the queue is full the batch
// is dropped.
func (w *Writer) Record(sessionID string, entries []types.FeedbackEntry) {
	if len(entries) == 0 {
		return
	}
	select {
	case w.queue <- batch{sessionID: sessionID, entries: entries}:
	default:
		w.dropped.Add(uint64(len(entries)))
		log.Printf("Archive queue full, dropping %d entries from session %s", len(entries), sessionID)
	}
}

// Written returns how many entries were stored
func (w *Writer) Written() uint64 {
	return w.written.Load()
}

// Dropped returns how many entries were lost to a full queue or a failed insert
func (w *Writer) Dropped() uint64 {
	return w.dropped.Load()
}

// Run inserts queued batches until ctx is cancelled, then flushes what
// is already queued.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.flush()
			return nil
		case b := <-w.queue:
			w.insert(b)
		}
	}
}

func (w *Writer) flush() {
	for {
		select {
		case b := <-w.queue:
			w.insert(b)
		default:
			return
		}
	}
}

func (w *Writer) insert(b batch) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := w.store.Insert(ctx, b.sessionID, b.entries); err != nil {
		w.dropped.Add(uint64(len(b.entries)))
		log.Printf("Failed to archive %d entries from session %s: %v", len(b.entries), b.sessionID, err)
		return
	}
	w.written.Add(uint64(len(b.entries)))
}
