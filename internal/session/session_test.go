package session

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/teisimplify/internal/highlight"
	"github.com/hyperifyio/teisimplify/internal/simplify"
)

func result(text string) *simplify.Response {
	return &simplify.Response{
		Simplified: text,
		Baseline:   "baseline " + text,
		Keywords:   map[string][]string{"Intro": {"models"}},
		Trace:      json.RawMessage(`{"chunks":"1"}`),
		Metrics:    simplify.Metrics{Readability: 70},
	}
}

func TestSession_SettersMirrorActive(t *testing.T) {
	s := New()
	assert.False(t, s.Snapshot().Active)
	s.SetSimplified("Hello")
	assert.True(t, s.Snapshot().Active)
	s.SetSimplified("")
	assert.False(t, s.Snapshot().Active)

	s.SetKeywords(map[string][]string{"a": {"x"}})
	s.SetBaseline("b")
	s.SetTrace(json.RawMessage(`{}`))
	s.SetMetrics(&simplify.Metrics{Bert: 1})
	snap := s.Snapshot()
	assert.Equal(t, "b", snap.Baseline)
	require.NotNil(t, snap.Metrics)
	s.SetMetrics(nil)
	assert.Nil(t, s.Snapshot().Metrics)
}

func TestSession_BeginApply(t *testing.T) {
	s := New()
	tk := s.Begin()
	snap := s.Snapshot()
	assert.Equal(t, PendingText, snap.Simplified)
	assert.True(t, snap.Pending)
	assert.Nil(t, snap.Metrics)

	require.True(t, s.Apply(tk, result("Models learn.")))
	snap = s.Snapshot()
	assert.Equal(t, "Models learn.", snap.Simplified)
	assert.False(t, snap.Pending)
	assert.Equal(t, "baseline Models learn.", snap.Baseline)
	require.NotNil(t, snap.Metrics)
	assert.InDelta(t, 70, snap.Metrics.Readability, 1e-9)

	assert.False(t, s.Apply(tk, result("again")), "a ticket applies once")
}

func TestSession_LastWriteWins(t *testing.T) {
	s := New()
	first := s.Begin()
	second := s.Begin()

	assert.False(t, s.Apply(first, result("stale")))
	assert.Equal(t, PendingText, s.Snapshot().Simplified)

	assert.True(t, s.Apply(second, result("fresh")))
	assert.False(t, s.Fail(first, SimplifyErrorText))
	assert.Equal(t, "fresh", s.Snapshot().Simplified)
}

func TestSession_ClearAbandonsInFlight(t *testing.T) {
	s := New()
	tk := s.Begin()
	s.Clear()
	assert.False(t, s.Apply(tk, result("late")))
	snap := s.Snapshot()
	assert.Empty(t, snap.Simplified)
	assert.False(t, snap.Active)
	assert.Empty(t, snap.Keywords)
	assert.Nil(t, snap.Trace)
}

func TestSession_Fail(t *testing.T) {
	s := New()
	tk := s.Begin()
	require.True(t, s.Fail(tk, SimplifyErrorText))
	snap := s.Snapshot()
	assert.Equal(t, SimplifyErrorText, snap.Simplified)
	assert.True(t, snap.Failed)
	assert.False(t, snap.Pending)
}

func TestSession_CancelRestoresPreviousState(t *testing.T) {
	s := New()
	first := s.Begin()
	require.True(t, s.Apply(first, result("Models learn.")))
	before := s.Snapshot()

	tk := s.Begin()
	s.Begin()
	assert.False(t, s.Cancel(tk), "superseded ticket")
	latest := Ticket(s.Snapshot().Generation)
	require.True(t, s.Cancel(latest))

	after := s.Snapshot()
	assert.Equal(t, "Models learn.", after.Simplified)
	assert.Equal(t, before.Keywords, after.Keywords)
	assert.Equal(t, before.Metrics, after.Metrics)
	assert.False(t, after.Pending)
	assert.Greater(t, after.Generation, before.Generation)
	assert.False(t, s.Apply(tk, result("late")))
	assert.False(t, s.Cancel(latest), "nothing pending")
}

func TestSnapshot_HighlightedWithHighlighter(t *testing.T) {
	snap := Snapshot{Simplified: "a < data", Keywords: map[string][]string{"s": {"data"}}}
	h := highlight.Highlighter{EscapeHTML: true}
	assert.Equal(t, "a &lt; "+highlight.DefaultMarker.Open+"data"+highlight.DefaultMarker.Close, snap.Highlighted(h))
	snap.Failed = true
	assert.Equal(t, "a &lt; data", snap.Highlighted(h))
}

func TestSession_HighlightedIsDerived(t *testing.T) {
	s := New()
	tk := s.Begin()
	assert.Equal(t, PendingText, s.Highlighted())
	s.Apply(tk, result("Big models learn."))
	want := "Big " + highlight.DefaultMarker.Open + "models" + highlight.DefaultMarker.Close + " learn."
	assert.Equal(t, want, s.Highlighted())

	s.SetKeywords(nil)
	assert.Equal(t, "Big models learn.", s.Highlighted())

	s.SetKeywords(map[string][]string{"x": {"learn"}})
	s.Highlighter = highlight.Highlighter{Marker: highlight.Marker{Open: "[", Close: "]"}}
	assert.Equal(t, "Big models [learn].", s.Highlighted())
}

func TestSession_SnapshotIsACopy(t *testing.T) {
	s := New()
	s.SetKeywords(map[string][]string{"a": {"x"}})
	snap := s.Snapshot()
	snap.Keywords["a"][0] = "mutated"
	assert.Equal(t, "x", s.Snapshot().Keywords["a"][0])
}

func TestSession_Subscribe(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()
	initial := <-ch
	assert.Empty(t, initial.Simplified)

	s.SetSimplified("one")
	s.SetSimplified("two")
	latest := <-ch
	assert.Equal(t, "two", latest.Simplified)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	s.SetSimplified("after cancel")
}

func TestSession_ConcurrentRequests(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	tickets := make([]Ticket, 20)
	for i := range tickets {
		tickets[i] = s.Begin()
	}
	for i, tk := range tickets {
		wg.Add(1)
		go func(i int, tk Ticket) {
			defer wg.Done()
			s.Apply(tk, result("r"))
		}(i, tk)
	}
	wg.Wait()
	snap := s.Snapshot()
	assert.False(t, snap.Pending)
	assert.Equal(t, uint64(tickets[len(tickets)-1]), snap.Generation)
}

func TestSettings(t *testing.T) {
	st := NewSettings()
	assert.Equal(t, "he", st.Lang())
	assert.Equal(t, ModeBasic, st.Mode())

	snap := Snapshot{Metrics: &simplify.Metrics{}}
	assert.False(t, st.ShowMetrics(snap))
	st.SetMode(ModeAdvanced)
	assert.True(t, st.ShowMetrics(snap))
	assert.False(t, st.ShowMetrics(Snapshot{}))

	st.SetLang("  ")
	assert.Equal(t, "he", st.Lang())
	st.SetLang("en")
	v := st.View(snap)
	assert.Equal(t, SettingsView{Lang: "en", Mode: ModeAdvanced, ShowMetrics: true}, v)

	m, err := ParseMode("ADVANCED")
	require.NoError(t, err)
	assert.Equal(t, ModeAdvanced, m)
	_, err = ParseMode("expert")
	assert.Error(t, err)
}
