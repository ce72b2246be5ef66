package modal

import "sync"

// Widget is a focusable control on a Screen.
type Widget struct {
	name   string
	screen *Screen

	mu       sync.Mutex
	attached bool
	value    string
	disabled bool
}

func (w *Widget) Name() string { return w.name }

// Focus makes w the active element. Detached widgets cannot take focus.
func (w *Widget) Focus() {
	if !w.Attached() {
		return
	}
	w.screen.setActive(w)
}

func (w *Widget) Attached() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attached
}

func (w *Widget) Value() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value
}

func (w *Widget) SetValue(v string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.value = v
}

func (w *Widget) Disabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.disabled
}

func (w *Widget) SetDisabled(v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disabled = v
}

// Screen is an in-memory Document: widgets in tab order, one active element,
// and a stack of key listeners consulted newest first.
type Screen struct {
	mu        sync.Mutex
	widgets   []*Widget
	active    *Widget
	listeners map[int]func(Key) bool
	nextID    int
}

func NewScreen() *Screen {
	return &Screen{listeners: make(map[int]func(Key) bool)}
}

// Add appends an attached widget to the tab order.
func (s *Screen) Add(name string) *Widget {
	w := &Widget{name: name, screen: s, attached: true}
	s.mu.Lock()
	s.widgets = append(s.widgets, w)
	s.mu.Unlock()
	return w
}

// Detach removes w from the document. If it held focus, nothing does now.
func (s *Screen) Detach(w *Widget) {
	w.mu.Lock()
	w.attached = false
	w.mu.Unlock()
	s.mu.Lock()
	if s.active == w {
		s.active = nil
	}
	s.mu.Unlock()
}

// Attach puts a detached widget back.
func (s *Screen) Attach(w *Widget) {
	w.mu.Lock()
	w.attached = true
	w.mu.Unlock()
}

func (s *Screen) ActiveElement() Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	return s.active
}

// Active is ActiveElement with the concrete type.
func (s *Screen) Active() *Widget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Screen) AddKeyListener(fn func(Key) bool) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Listeners reports how many key listeners are installed.
func (s *Screen) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// Press dispatches k. Unconsumed Tab moves focus through attached widgets in
// document order.
func (s *Screen) Press(k Key) {
	s.mu.Lock()
	fns := make([]func(Key) bool, 0, len(s.listeners))
	for id := s.nextID - 1; id >= 0; id-- {
		if fn, ok := s.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		if fn(k) {
			return
		}
	}
	if k.Name == KeyTab {
		s.defaultTab(k.Shift)
	}
}

func (s *Screen) defaultTab(backward bool) {
	s.mu.Lock()
	var order []*Widget
	for _, w := range s.widgets {
		if w.Attached() {
			order = append(order, w)
		}
	}
	active := s.active
	s.mu.Unlock()
	if len(order) == 0 {
		return
	}

	idx := -1
	for i, w := range order {
		if w == active {
			idx = i
		}
	}
	next := 0
	switch {
	case idx < 0 && backward:
		next = len(order) - 1
	case idx < 0:
	case backward:
		next = (idx - 1 + len(order)) % len(order)
	default:
		next = (idx + 1) % len(order)
	}
	order[next].Focus()
}

func (s *Screen) setActive(w *Widget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = w
}
