package capture

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valentinpelus/posturewatch/pkg/analysis"
	"github.com/valentinpelus/posturewatch/pkg/history"
	"github.com/valentinpelus/posturewatch/pkg/source"
	"github.com/valentinpelus/posturewatch/pkg/types"
)

// DefaultInterval is the live sampling cadence
const DefaultInterval = 500 * time.Millisecond

// ErrRunning is returned when starting a loop that is already running
var ErrRunning = errors.New("capture loop already running")

// State of the loop
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Run is one live session handed to the loop. Callbacks are invoked from
// the loop's result goroutine, outside the loop's lock.
type Run struct {
	SessionID string
	History   *history.History
	OnSuccess func(sessionID string, entry types.FeedbackEntry)
	OnError   func(sessionID string, err error)
}

// Options tune a loop
type Options struct {
	Interval time.Duration
	Now      func() time.Time
}

// Stats counts what the loop has done since it was created
type Stats struct {
	Ticks      uint64 `json:"ticks"`
	Skipped    uint64 `json:"skipped"`
	Dispatched uint64 `json:"dispatched"`
	Applied    uint64 `json:"applied"`
	Failed     uint64 `json:"failed"`
	Discarded  uint64 `json:"discarded"`
}

type result struct {
	gen    uint64
	issues []string
	err    error
}

// Loop samples a source on a fixed cadence and dispatches every frame for
// analysis without waiting on earlier requests. Results are applied in the
// order they resolve.
type Loop struct {
	source   source.Source
	analyzer analysis.FrameAnalyzer
	interval time.Duration
	now      func() time.Time

	// requests outlive Stop; only Close cancels them
	requestCtx    context.Context
	cancelRequest context.CancelFunc
	inflight      sync.WaitGroup

	mu            sync.Mutex
	state         State
	gen           uint64
	run           Run
	cancel        context.CancelFunc
	schedulerDone chan struct{}
	consumerDone  chan struct{}

	ticks      atomic.Uint64
	skipped    atomic.Uint64
	dispatched atomic.Uint64
	applied    atomic.Uint64
	failed     atomic.Uint64
	discarded  atomic.Uint64
}

// New creates a stopped loop
func New(src source.Source, analyzer analysis.FrameAnalyzer, opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	requestCtx, cancelRequest := context.WithCancel(context.Background())
	return &Loop{
		source:        src,
		analyzer:      analyzer,
		interval:      opts.Interval,
		now:           opts.Now,
		requestCtx:    requestCtx,
		cancelRequest: cancelRequest,
	}
}

// State returns whether the loop is running
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Stats returns the loop counters
func (l *Loop) Stats() Stats {
	return Stats{
		Ticks:      l.ticks.Load(),
		Skipped:    l.skipped.Load(),
		Dispatched: l.dispatched.Load(),
		Applied:    l.applied.Load(),
		Failed:     l.failed.Load(),
		Discarded:  l.discarded.Load(),
	}
}

// Start begins sampling for the given run
func (l *Loop) Start(run Run) error {
	if run.History == nil {
		return errors.New("capture run needs a history")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == Running {
		return ErrRunning
	}
	if err := l.requestCtx.Err(); err != nil {
		return errors.New("capture loop closed")
	}

	l.gen++
	l.state = Running
	l.run = run

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.schedulerDone = make(chan struct{})
	l.consumerDone = make(chan struct{})

	results := make(chan result, 16)
	go l.schedule(ctx, l.gen, results, l.schedulerDone)
	go l.consume(ctx, results, l.consumerDone)

	log.Printf("Live capture started (session %s, every %s from %s)", run.SessionID, l.interval, l.source.Name())
	return nil
}

// Stop cancels the recurring trigger. Requests already in flight keep
// running, but whatever they resolve with is discarded. Stopping a
// stopped loop does nothing.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.state == Stopped {
		l.mu.Unlock()
		return
	}
	sessionID := l.run.SessionID
	l.state = Stopped
	l.gen++
	l.run = Run{}
	cancel := l.cancel
	schedulerDone := l.schedulerDone
	l.cancel = nil
	l.mu.Unlock()

	cancel()
	<-schedulerDone

	log.Printf("Live capture stopped (session %s)", sessionID)
}

// Close stops the loop and aborts in-flight requests, waiting up to
// timeout for them to return.
func (l *Loop) Close(timeout time.Duration) error {
	l.Stop()
	l.cancelRequest()

	l.mu.Lock()
	consumerDone := l.consumerDone
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.inflight.Wait()
		if consumerDone != nil {
			<-consumerDone
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("timed out waiting for in-flight analyses")
	}
}

func (l *Loop) schedule(ctx context.Context, gen uint64, results chan<- result, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx, gen, results)
		}
	}
}

// tick captures one frame and dispatches it. It never waits for the
// analysis to finish.
func (l *Loop) tick(ctx context.Context, gen uint64, results chan<- result) {
	l.ticks.Add(1)

	frame, err := l.source.Capture(ctx)
	if err != nil {
		// device warming up or momentarily unreadable
		l.skipped.Add(1)
		if !errors.Is(err, source.ErrUnavailable) && ctx.Err() == nil {
			log.Printf("Capture from %s failed: %v", l.source.Name(), err)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	l.dispatched.Add(1)
	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()

		issues, err := l.analyzer.AnalyzeFrame(l.requestCtx, frame)
		select {
		case results <- result{gen: gen, issues: issues, err: err}:
		case <-ctx.Done():
			l.discarded.Add(1)
		}
	}()
}

func (l *Loop) consume(ctx context.Context, results <-chan result, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case res := <-results:
			l.apply(res)
		}
	}
}

// apply records one resolution. The generation check and the history
// append happen under the loop lock, so nothing lands after Stop returns.
func (l *Loop) apply(res result) {
	l.mu.Lock()
	if l.state != Running || res.gen != l.gen {
		l.mu.Unlock()
		l.discarded.Add(1)
		return
	}
	run := l.run

	if res.err != nil {
		l.mu.Unlock()
		l.failed.Add(1)
		log.Printf("Live frame analysis failed (session %s): %v", run.SessionID, res.err)
		if run.OnError != nil {
			run.OnError(run.SessionID, res.err)
		}
		return
	}

	entry := types.NewEntry(types.LiveTimestamp(l.now()), res.issues)
	run.History.Append(entry)
	l.mu.Unlock()

	l.applied.Add(1)
	if run.OnSuccess != nil {
		run.OnSuccess(run.SessionID, entry)
	}
}
