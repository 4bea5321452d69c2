package session

import (
	"fmt"
	"strings"
	"sync"
)

// Mode selects how much detail is shown.
type Mode string

const (
	ModeBasic    Mode = "basic"
	ModeAdvanced Mode = "advanced"
)

// DefaultLanguage is the initial interface language.
const DefaultLanguage = "he"

// ParseMode accepts "basic" or "advanced" in any case.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeBasic:
		return ModeBasic, nil
	case ModeAdvanced:
		return ModeAdvanced, nil
	}
	return ModeBasic, fmt.Errorf("unknown mode %q (want basic or advanced)", s)
}

// Settings are user display preferences.
type Settings struct {
	mu   sync.RWMutex
	lang string
	mode Mode
}

// NewSettings returns settings with the default language and basic mode.
func NewSettings() *Settings {
	return &Settings{lang: DefaultLanguage, mode: ModeBasic}
}

// SettingsView is a copy of Settings for serialization.
type SettingsView struct {
	Lang        string `json:"lang"`
	Mode        Mode   `json:"mode"`
	ShowMetrics bool   `json:"showMetrics"`
}

func (s *Settings) Lang() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lang
}

// SetLang ignores blank values.
func (s *Settings) SetLang(lang string) {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return
	}
	s.mu.Lock()
	s.lang = lang
	s.mu.Unlock()
}

func (s *Settings) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *Settings) SetMode(m Mode) {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
}

// ShowMetrics reports whether metrics should be displayed: only in advanced
// mode and only when metrics exist.
func (s *Settings) ShowMetrics(snap Snapshot) bool {
	return s.Mode() == ModeAdvanced && snap.Metrics != nil
}

// View returns a copy of the settings for snap.
func (s *Settings) View(snap Snapshot) SettingsView {
	s.mu.RLock()
	v := SettingsView{Lang: s.lang, Mode: s.mode}
	s.mu.RUnlock()
	v.ShowMetrics = v.Mode == ModeAdvanced && snap.Metrics != nil
	return v
}
