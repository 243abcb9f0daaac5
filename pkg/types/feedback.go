package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// OriginKind tells where a feedback entry came from
type OriginKind int

const (
	// OriginBatch marks an entry produced by clip analysis
	OriginBatch OriginKind = iota
	// OriginLive marks an entry produced by the live capture loop
	OriginLive
)

func (k OriginKind) String() string {
	if k == OriginLive {
		return "live"
	}
	return "batch"
}

// Origin identifies a feedback entry: a position in an analyzed clip or
// the wall-clock time a live result arrived.
type Origin struct {
	Kind      OriginKind
	Index     int
	Timestamp time.Time
}

// BatchIndex returns the origin of the unit at position n of a clip
func BatchIndex(n int) Origin {
	return Origin{Kind: OriginBatch, Index: n}
}

// LiveTimestamp returns the origin of a live result received at t
func LiveTimestamp(t time.Time) Origin {
	return Origin{Kind: OriginLive, Timestamp: t}
}

// FeedbackEntry is one analyzed sample. It is immutable once created.
type FeedbackEntry struct {
	origin Origin
	issues []string
}

// NewEntry creates a feedback entry. The issue list is copied.
func NewEntry(origin Origin, issues []string) FeedbackEntry {
	copied := make([]string, len(issues))
	copy(copied, issues)
	return FeedbackEntry{origin: origin, issues: copied}
}

// Origin returns where the entry came from
func (e FeedbackEntry) Origin() Origin {
	return e.origin
}

// Issues returns a copy of the issue labels in the order the service reported them
func (e FeedbackEntry) Issues() []string {
	out := make([]string, len(e.issues))
	copy(out, e.issues)
	return out
}

// Good reports whether the analysis found no problems
func (e FeedbackEntry) Good() bool {
	return len(e.issues) == 0
}

// Label renders the entry heading shown next to its issues
func (e FeedbackEntry) Label() string {
	if e.origin.Kind == OriginLive {
		return fmt.Sprintf("Live Frame (%s)", e.origin.Timestamp.Format("15:04:05"))
	}
	return fmt.Sprintf("Frame %d", e.origin.Index)
}

type feedbackEntryJSON struct {
	Origin    string     `json:"origin"`
	Frame     *int       `json:"frame,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Label     string     `json:"label"`
	Issues    []string   `json:"issues"`
	Good      bool       `json:"good"`
}

// MarshalJSON renders the entry for the state API and websocket feed
func (e FeedbackEntry) MarshalJSON() ([]byte, error) {
	out := feedbackEntryJSON{
		Origin: e.origin.Kind.String(),
		Label:  e.Label(),
		Issues: e.Issues(),
		Good:   e.Good(),
	}
	if e.origin.Kind == OriginLive {
		ts := e.origin.Timestamp
		out.Timestamp = &ts
	} else {
		idx := e.origin.Index
		out.Frame = &idx
	}
	return json.Marshal(out)
}
