// Package session holds the display state of one simplification workflow:
// the current result, its keywords and metrics, and whether a request is in
// flight. A Session is an explicit object owned by its caller and is safe for
// concurrent use.
package session

import (
	"encoding/json"
	"sync"

	"github.com/hyperifyio/teisimplify/internal/highlight"
	"github.com/hyperifyio/teisimplify/internal/simplify"
)

// Placeholders shown in place of a result.
const (
	PendingText       = "Simplifying the text..."
	SimplifyErrorText = "Error simplifying the text"
	ExtractErrorText  = "Error extracting PDF."
)

// Ticket identifies one simplification request. Only the ticket from the
// latest Begin may change the session.
type Ticket uint64

// Snapshot is a copy of the session state.
type Snapshot struct {
	Simplified string              `json:"simplified"`
	Active     bool                `json:"active"`
	Pending    bool                `json:"pending"`
	Failed     bool                `json:"failed"`
	Keywords   map[string][]string `json:"keywords"`
	Baseline   string              `json:"baseline"`
	Trace      json.RawMessage     `json:"trace,omitempty"`
	Metrics    *simplify.Metrics   `json:"metrics"`
	Generation uint64              `json:"generation"`
}

// Highlighted renders the snapshot text with its keywords. While a request is
// pending or has failed the placeholder is rendered without keywords.
func (st Snapshot) Highlighted(h highlight.Highlighter) string {
	if st.Pending || st.Failed {
		return h.Highlight(st.Simplified, nil)
	}
	return h.Highlight(st.Simplified, st.Keywords)
}

// Session is the mutable state behind one view.
type Session struct {
	// Highlighter renders Highlighted. The zero value uses the default marker.
	// Set it before the session is shared.
	Highlighter highlight.Highlighter

	mu sync.Mutex
	st Snapshot
	// prev is the state replaced by the pending request, restored by Cancel.
	prev *Snapshot
	subs map[chan Snapshot]struct{}
}

// New returns an empty session.
func New() *Session {
	return &Session{st: Snapshot{Keywords: map[string][]string{}}}
}

// SetSimplified replaces the displayed text. Active follows whether text is
// non-empty.
func (s *Session) SetSimplified(text string) {
	s.update(func(st *Snapshot) {
		st.Simplified = text
		st.Active = text != ""
	})
}

func (s *Session) SetKeywords(kw map[string][]string) {
	s.update(func(st *Snapshot) { st.Keywords = copyKeywords(kw) })
}

func (s *Session) SetBaseline(text string) {
	s.update(func(st *Snapshot) { st.Baseline = text })
}

func (s *Session) SetTrace(trace json.RawMessage) {
	s.update(func(st *Snapshot) { st.Trace = append(json.RawMessage(nil), trace...) })
}

// SetMetrics stores m; nil clears the metrics.
func (s *Session) SetMetrics(m *simplify.Metrics) {
	s.update(func(st *Snapshot) {
		if m == nil {
			st.Metrics = nil
			return
		}
		c := *m
		st.Metrics = &c
	})
}

// Clear resets every field and abandons any request in flight.
func (s *Session) Clear() {
	s.update(func(st *Snapshot) {
		gen := st.Generation + 1
		*st = Snapshot{Keywords: map[string][]string{}, Generation: gen}
		s.prev = nil
	})
}

// Begin starts a new request: results of earlier tickets are discarded from
// now on and the pending placeholder is shown.
func (s *Session) Begin() Ticket {
	var t Ticket
	s.update(func(st *Snapshot) {
		if !st.Pending {
			prev := st.clone()
			s.prev = &prev
		}
		st.Generation++
		t = Ticket(st.Generation)
		st.Simplified = PendingText
		st.Active = true
		st.Pending = true
		st.Failed = false
		st.Keywords = map[string][]string{}
		st.Baseline = ""
		st.Trace = nil
		st.Metrics = nil
	})
	return t
}

// Apply stores a finished result. It reports false, changing nothing, when
// t has been superseded by a later Begin or Clear.
func (s *Session) Apply(t Ticket, resp *simplify.Response) bool {
	if resp == nil {
		return false
	}
	applied := false
	s.update(func(st *Snapshot) {
		if uint64(t) != st.Generation || !st.Pending {
			return
		}
		applied = true
		s.prev = nil
		st.Pending = false
		st.Failed = false
		st.Simplified = resp.Simplified
		st.Active = resp.Simplified != ""
		st.Keywords = copyKeywords(resp.Keywords)
		st.Baseline = resp.Baseline
		st.Trace = append(json.RawMessage(nil), resp.Trace...)
		m := resp.Metrics
		st.Metrics = &m
	})
	return applied
}

// Fail replaces the pending placeholder with placeholder. Stale tickets are
// ignored.
func (s *Session) Fail(t Ticket, placeholder string) bool {
	applied := false
	s.update(func(st *Snapshot) {
		if uint64(t) != st.Generation || !st.Pending {
			return
		}
		applied = true
		s.prev = nil
		st.Pending = false
		st.Failed = true
		st.Simplified = placeholder
		st.Active = placeholder != ""
	})
	return applied
}

// Cancel withdraws the pending request of t and restores the state shown
// before its Begin. Stale tickets are ignored.
func (s *Session) Cancel(t Ticket) bool {
	applied := false
	s.update(func(st *Snapshot) {
		if uint64(t) != st.Generation || !st.Pending {
			return
		}
		applied = true
		restored := Snapshot{Keywords: map[string][]string{}}
		if s.prev != nil {
			restored = *s.prev
		}
		restored.Generation = st.Generation
		*st = restored
		s.prev = nil
	})
	return applied
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.clone()
}

// Highlighted renders the current text with the current keywords. It is
// computed on each call so it can never disagree with the stored state.
func (s *Session) Highlighted() string {
	return s.Snapshot().Highlighted(s.Highlighter)
}

// Subscribe delivers a snapshot after every change. Slow readers miss
// intermediate states but always see the latest one once they catch up.
// The returned function unsubscribes and closes the channel.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[chan Snapshot]struct{})
	}
	s.subs[ch] = struct{}{}
	ch <- s.st.clone()
	s.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			close(ch)
			s.mu.Unlock()
		})
	}
}

func (s *Session) update(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.Keywords == nil {
		s.st.Keywords = map[string][]string{}
	}
	fn(&s.st)
	for ch := range s.subs {
		snap := s.st.clone()
		select {
		case ch <- snap:
		default:
			// drop the stale value so the newest one fits
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (st Snapshot) clone() Snapshot {
	c := st
	c.Keywords = copyKeywords(st.Keywords)
	if st.Trace != nil {
		c.Trace = append(json.RawMessage(nil), st.Trace...)
	}
	if st.Metrics != nil {
		m := *st.Metrics
		c.Metrics = &m
	}
	return c
}

func copyKeywords(kw map[string][]string) map[string][]string {
	out := make(map[string][]string, len(kw))
	for k, v := range kw {
		out[k] = append([]string(nil), v...)
	}
	return out
}
