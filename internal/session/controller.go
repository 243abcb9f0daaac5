package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/valentinpelus/posturewatch/internal/capture"
	"github.com/valentinpelus/posturewatch/pkg/analysis"
	"github.com/valentinpelus/posturewatch/pkg/history"
	"github.com/valentinpelus/posturewatch/pkg/types"
)

// Loop is the live capture loop driven by the controller
type Loop interface {
	Start(run capture.Run) error
	Stop()
	State() capture.State
	Stats() capture.Stats
	Close(timeout time.Duration) error
}

// Publisher receives the state after every change
type Publisher interface {
	Publish(Snapshot)
}

// Recorder archives feedback entries as they are produced
type Recorder interface {
	Record(sessionID string, entries []types.FeedbackEntry)
}

// Notifier is told about finished clip analyses
type Notifier interface {
	NotifyClipAnalyzed(ctx context.Context, clipName string, entries []types.FeedbackEntry) error
}

// Options wires the optional collaborators of a controller
type Options struct {
	LiveCapacity int
	Publisher    Publisher
	Recorder     Recorder
	Notifier     Notifier
}

// Controller owns the session mode, the feedback history, the capture
// loop lifetime and the single error shown to the user.
type Controller struct {
	clips        analysis.ClipAnalyzer
	loop         Loop
	publisher    Publisher
	recorder     Recorder
	notifier     Notifier
	liveCapacity int
	newID        func() string

	// pubMu keeps snapshots reaching the publisher in the order they were taken
	pubMu sync.Mutex

	mu        sync.Mutex
	mode      Mode
	sessionID string
	busy      bool
	clip      *analysis.Clip
	preview   *ClipPreview
	history   *history.History
	errMsg    string
}

// NewController creates an idle controller
func NewController(clips analysis.ClipAnalyzer, loop Loop, opts Options) *Controller {
	if opts.LiveCapacity <= 0 {
		opts.LiveCapacity = history.LiveCapacity
	}
	c := &Controller{
		clips:        clips,
		loop:         loop,
		publisher:    opts.Publisher,
		recorder:     opts.Recorder,
		notifier:     opts.Notifier,
		liveCapacity: opts.LiveCapacity,
		newID:        uuid.NewString,
		history:      history.New(0),
	}
	c.sessionID = c.newID()
	return c
}

// State returns the current snapshot
func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID: c.sessionID,
		Mode:      c.mode,
		Capture:   c.loop.State().String(),
		Busy:      c.busy,
		Error:     c.errMsg,
		Feedback:  c.history.Snapshot(),
		Stats:     c.loop.Stats(),
	}
	if c.preview != nil {
		preview := *c.preview
		snap.Clip = &preview
	}
	return snap
}

func (c *Controller) publish() {
	if c.publisher == nil {
		return
	}
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	c.publisher.Publish(c.State())
}

// enterLocked switches mode with a fresh session id, an empty history and
// no error.
func (c *Controller) enterLocked(mode Mode, capacity int) {
	c.mode = mode
	c.sessionID = c.newID()
	c.history = history.New(capacity)
	c.clearErrorLocked()
}

// leaveLiveLocked leaves live mode. The last live history stays visible
// until the next mode starts. The new session id orphans the running loop's
// callbacks, so the caller stops the loop after releasing c.mu: Stop waits
// for an in-progress capture.
func (c *Controller) leaveLiveLocked() {
	c.mode = Idle
	c.sessionID = c.newID()
	c.clearErrorLocked()
}

// setErrorLocked records msg for sessionID. Errors from a session that is
// no longer current are dropped.
func (c *Controller) setErrorLocked(sessionID, msg string) {
	if sessionID != c.sessionID {
		log.Printf("Dropping error from stale session %s: %s", sessionID, msg)
		return
	}
	c.errMsg = msg
}

func (c *Controller) clearErrorLocked() {
	c.errMsg = ""
}

// SelectClip stages a clip for batch analysis, leaving live mode if needed.
// Selecting an empty clip clears the staged one.
func (c *Controller) SelectClip(clip analysis.Clip) error {
	if len(clip.Data) == 0 {
		return c.ClearClip()
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	wasLive := c.mode == Live
	if wasLive {
		c.leaveLiveLocked()
	}
	c.enterLocked(Uploading, 0)
	c.clip = &clip
	c.preview = &ClipPreview{
		ID:          uuid.NewString(),
		Name:        clip.Name,
		Size:        len(clip.Data),
		ContentType: clip.ContentType,
		StagedAt:    time.Now(),
	}
	preview := *c.preview
	c.mu.Unlock()

	if wasLive {
		c.loop.Stop()
	}
	log.Printf("Staged clip %s", preview)
	c.publish()
	return nil
}

// ClearClip drops the staged clip and its preview
func (c *Controller) ClearClip() error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.clip = nil
	c.preview = nil
	if c.mode == Uploading {
		c.mode = Idle
		c.sessionID = c.newID()
		c.clearErrorLocked()
	}
	c.mu.Unlock()

	c.publish()
	return nil
}

// AnalyzeClip submits the staged clip and replaces the history with one
// entry per analyzed unit. On failure the history is left untouched.
func (c *Controller) AnalyzeClip(ctx context.Context) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	wasLive := c.mode == Live
	if wasLive {
		c.leaveLiveLocked()
	}
	if c.clip == nil {
		c.setErrorLocked(c.sessionID, ErrNoClip.Message)
		c.mu.Unlock()
		if wasLive {
			c.loop.Stop()
		}
		c.publish()
		return ErrNoClip
	}

	c.busy = true
	c.clearErrorLocked()
	clip := *c.clip
	sessionID := c.sessionID
	target := c.history
	c.mu.Unlock()
	if wasLive {
		c.loop.Stop()
	}
	c.publish()

	start := time.Now()
	results, err := c.clips.AnalyzeClip(ctx, clip)

	c.mu.Lock()
	c.busy = false
	if err != nil {
		c.setErrorLocked(sessionID, analysis.Describe(err, analysis.ScopeVideo))
		c.mu.Unlock()
		log.Printf("Clip analysis of %s failed after %s: %v", clip.Name, time.Since(start).Round(time.Millisecond), err)
		c.publish()
		return err
	}

	entries := make([]types.FeedbackEntry, 0, len(results))
	for i, issues := range results {
		entries = append(entries, types.NewEntry(types.BatchIndex(i), issues))
	}
	if sessionID == c.sessionID {
		target.ReplaceAll(entries)
		c.clearErrorLocked()
	}
	c.mu.Unlock()

	log.Printf("Clip analysis of %s finished in %s: %d units", clip.Name, time.Since(start).Round(time.Millisecond), len(entries))
	c.publish()

	if c.recorder != nil {
		c.recorder.Record(sessionID, entries)
	}
	if c.notifier != nil {
		go func() {
			nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.notifier.NotifyClipAnalyzed(nctx, clip.Name, entries); err != nil {
				log.Printf("Failed to send clip summary: %v", err)
			}
		}()
	}
	return nil
}

// StartLive enters live mode: the staged clip is dropped, the history
// starts empty with the live capacity and the capture loop begins.
// Starting while already live does nothing.
func (c *Controller) StartLive() error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.mode == Live {
		c.mu.Unlock()
		return nil
	}

	c.clip = nil
	c.preview = nil
	c.enterLocked(Live, c.liveCapacity)

	run := capture.Run{
		SessionID: c.sessionID,
		History:   c.history,
		OnSuccess: c.onLiveResult,
		OnError:   c.onLiveError,
	}
	if err := c.loop.Start(run); err != nil {
		c.mode = Idle
		c.sessionID = c.newID()
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	c.publish()
	return nil
}

// StopLive leaves live mode. Calling it when not live does nothing.
func (c *Controller) StopLive() {
	c.mu.Lock()
	if c.mode != Live {
		c.mu.Unlock()
		return
	}
	c.leaveLiveLocked()
	c.mu.Unlock()

	c.loop.Stop()
	c.publish()
}

// Shutdown stops live capture and releases the loop
func (c *Controller) Shutdown(timeout time.Duration) error {
	c.mu.Lock()
	if c.mode == Live {
		c.leaveLiveLocked()
	}
	c.mu.Unlock()

	return c.loop.Close(timeout)
}

func (c *Controller) onLiveResult(sessionID string, entry types.FeedbackEntry) {
	c.mu.Lock()
	if sessionID != c.sessionID || c.mode != Live {
		c.mu.Unlock()
		return
	}
	c.clearErrorLocked()
	c.mu.Unlock()

	c.publish()
	if c.recorder != nil {
		c.recorder.Record(sessionID, []types.FeedbackEntry{entry})
	}
}

func (c *Controller) onLiveError(sessionID string, err error) {
	c.mu.Lock()
	c.setErrorLocked(sessionID, analysis.Describe(err, analysis.ScopeLive))
	c.mu.Unlock()

	c.publish()
}
