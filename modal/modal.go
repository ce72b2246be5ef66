// Package modal implements focus-trapped overlays: open captures focus and
// installs a keyboard trap, close removes it and gives focus back.
package modal

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Element is anything that can hold keyboard focus.
type Element interface {
	Focus()
	// Attached reports whether the element is still part of the document.
	Attached() bool
}

// Document is the surface modals live on.
type Document interface {
	// ActiveElement returns the focused element, or nil.
	ActiveElement() Element
	// AddKeyListener installs fn ahead of default key handling. fn returns
	// true when it consumed the key.
	AddKeyListener(fn func(Key) bool) (remove func())
}

// Key is a keyboard event.
type Key struct {
	Name  string
	Shift bool
}

const (
	KeyEscape = "Escape"
	KeyTab    = "Tab"
)

// Options parameterize one modal instance.
type Options struct {
	Name     string
	Document Document
	// Focusables lists the modal's focusable descendants in tab order.
	Focusables func() []Element
	// Initial is the field focused once the modal has settled.
	Initial func() Element
	// Settle delays initial focus so it does not race the open render.
	Settle time.Duration
	// OnOpen resets fields for a fresh opening.
	OnOpen  func(params any)
	OnClose func()
	Logger  *zap.Logger
}

// Controller runs the CLOSED -> OPEN -> CLOSED lifecycle of one modal.
type Controller struct {
	opts Options

	mu          sync.Mutex
	open        bool
	gen         uint64
	lastFocused Element
	params      any
	removeKey   func()
	settle      *time.Timer
}

func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Focusables == nil {
		opts.Focusables = func() []Element { return nil }
	}
	return &Controller{opts: opts}
}

// Open shows the modal with params. Opening an open modal re-captures focus
// and resets its fields; modals never stack.
func (c *Controller) Open(params any) {
	c.mu.Lock()
	last := c.opts.Document.ActiveElement()
	c.gen++
	gen := c.gen
	c.open = true
	c.lastFocused = last
	c.params = params
	oldRemove := c.removeKey
	c.removeKey = nil
	if c.settle != nil {
		c.settle.Stop()
		c.settle = nil
	}
	c.mu.Unlock()

	if oldRemove != nil {
		oldRemove()
	}
	if c.opts.OnOpen != nil {
		c.opts.OnOpen(params)
	}
	remove := c.opts.Document.AddKeyListener(c.handleKey)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || !c.open {
		// Closed while OnOpen ran.
		remove()
		return
	}
	c.removeKey = remove
	c.settle = time.AfterFunc(c.opts.Settle, func() { c.focusInitial(gen) })
	c.opts.Logger.Debug("modal opened", zap.String("modal", c.opts.Name))
}

// Close hides the modal and returns focus to whatever held it before Open,
// provided that element is still attached.
func (c *Controller) Close() {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return
	}
	c.open = false
	c.gen++
	remove := c.removeKey
	c.removeKey = nil
	if c.settle != nil {
		c.settle.Stop()
		c.settle = nil
	}
	last := c.lastFocused
	c.lastFocused = nil
	c.mu.Unlock()

	if remove != nil {
		remove()
	}
	if c.opts.OnClose != nil {
		c.opts.OnClose()
	}
	if last != nil && last.Attached() {
		last.Focus()
	}
	c.opts.Logger.Debug("modal closed", zap.String("modal", c.opts.Name))
}

// CloseAfter closes the modal after d unless it was closed or reopened in the
// meantime.
func (c *Controller) CloseAfter(d time.Duration) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	time.AfterFunc(d, func() {
		c.mu.Lock()
		same := c.open && c.gen == gen
		c.mu.Unlock()
		if same {
			c.Close()
		}
	})
}

func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Params returns what the latest Open was called with.
func (c *Controller) Params() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

func (c *Controller) focusInitial(gen uint64) {
	c.mu.Lock()
	ok := c.open && c.gen == gen
	c.mu.Unlock()
	if !ok || c.opts.Initial == nil {
		return
	}
	if el := c.opts.Initial(); el != nil {
		el.Focus()
	}
}

func (c *Controller) handleKey(k Key) bool {
	if !c.IsOpen() {
		return false
	}
	switch k.Name {
	case KeyEscape:
		c.Close()
		return true
	case KeyTab:
		return c.cycle(k.Shift)
	}
	return false
}

// cycle keeps Tab inside the modal: past the last element it wraps to the
// first, before the first it wraps to the last.
func (c *Controller) cycle(backward bool) bool {
	els := c.opts.Focusables()
	if len(els) == 0 {
		return false
	}
	active := c.opts.Document.ActiveElement()
	idx := -1
	for i, el := range els {
		if el == active {
			idx = i
			break
		}
	}

	var next int
	switch {
	case idx < 0 && backward:
		next = len(els) - 1
	case idx < 0:
		next = 0
	case backward:
		next = (idx - 1 + len(els)) % len(els)
	default:
		next = (idx + 1) % len(els)
	}
	els[next].Focus()
	return true
}
