// Package theme remembers the light/dark preference next to the session.
package theme

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"
)

// Key is the durable record key.
const Key = "theme"

// Icon is the toggle's glyph: it shows the theme a press switches to.
func (t Theme) Icon() string {
	if t == Dark {
		return "☀️"
	}
	return "🌙"
}

func (t Theme) Next() Theme {
	if t == Dark {
		return Light
	}
	return Dark
}

type KV interface {
	Get(key string) (string, bool, error)
	Set(pairs map[string]string) error
}

// Preference is the current theme backed by kv.
type Preference struct {
	kv       KV
	fallback Theme

	mu  sync.Mutex
	cur Theme
}

// Load restores the saved theme. Without one it uses def ("light" or
// "dark"), then the terminal background, then light. Anything saved other
// than "dark" reads as light.
func Load(kv KV, def string) (*Preference, error) {
	p := &Preference{kv: kv, fallback: environment(def)}
	saved, ok, err := kv.Get(Key)
	if err != nil {
		return nil, fmt.Errorf("load theme: %w", err)
	}
	switch {
	case !ok:
		p.cur = p.fallback
	case Theme(saved) == Dark:
		p.cur = Dark
	default:
		p.cur = Light
	}
	return p, nil
}

func (p *Preference) Current() Theme {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur
}

// Toggle flips the theme and persists the new value.
func (p *Preference) Toggle() (Theme, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setLocked(p.cur.Next())
}

func (p *Preference) Set(t Theme) (Theme, error) {
	if t != Light && t != Dark {
		return p.Current(), fmt.Errorf("unknown theme %q", t)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setLocked(t)
}

func (p *Preference) setLocked(t Theme) (Theme, error) {
	if err := p.kv.Set(map[string]string{Key: string(t)}); err != nil {
		return p.cur, fmt.Errorf("save theme: %w", err)
	}
	p.cur = t
	return t, nil
}

func environment(def string) Theme {
	switch Theme(def) {
	case Light, Dark:
		return Theme(def)
	}
	if darkBackground(os.Getenv("COLORFGBG")) {
		return Dark
	}
	return Light
}

// darkBackground reads the "fg;bg" (or "fg;default;bg") form set by rxvt,
// Konsole and friends. Background colours 0-6 and 8 are dark.
func darkBackground(colorfgbg string) bool {
	if colorfgbg == "" {
		return false
	}
	parts := strings.Split(colorfgbg, ";")
	bg, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return false
	}
	return (bg >= 0 && bg <= 6) || bg == 8
}
