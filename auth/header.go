package auth

import (
	"net/url"
	"sync"

	"hospital-appointments/session"
)

// Header button labels.
const (
	LabelLogin     = "Login"
	LabelDashboard = "Dashboard"
)

type Subscriber interface {
	Get() session.Session
	Subscribe(fn func(session.Session)) (unsubscribe func())
}

type Opener interface {
	Open(params any)
}

// HeaderState is the account button as drawn.
type HeaderState struct {
	Label string
	// Href is the dashboard link when signed in.
	Href string
}

// Header is the account button in the page header. It reads the session once
// at construction, so a restored session is shown from the first render.
type Header struct {
	login Opener

	mu          sync.Mutex
	state       HeaderState
	listeners   []func(HeaderState)
	unsubscribe func()
}

func NewHeader(sessions Subscriber, login Opener) *Header {
	h := &Header{login: login}
	h.state = headerFor(sessions.Get())
	h.unsubscribe = sessions.Subscribe(h.update)
	return h
}

func (h *Header) OnChange(fn func(HeaderState)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

func (h *Header) State() HeaderState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Activate is a click on the button: signed out it opens the login modal,
// signed in it returns the dashboard link to navigate to.
func (h *Header) Activate() (href string) {
	st := h.State()
	if st.Href == "" {
		if h.login != nil {
			h.login.Open(nil)
		}
		return ""
	}
	return st.Href
}

// Close stops following the session.
func (h *Header) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
}

func (h *Header) update(s session.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = headerFor(s)
	for _, fn := range h.listeners {
		fn(h.state)
	}
}

func headerFor(s session.Session) HeaderState {
	if !s.Active() {
		return HeaderState{Label: LabelLogin}
	}
	q := url.Values{"user_id": {s.UserID.String()}}
	return HeaderState{Label: LabelDashboard, Href: "/dashboard?" + q.Encode()}
}
