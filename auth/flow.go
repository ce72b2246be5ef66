// Package auth signs users in and out and keeps the header's account button
// in step with the session.
package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"hospital-appointments/api"
	"hospital-appointments/session"
)

const (
	MsgMissingCredentials = "Enter username and password"
	MsgSigningIn          = "Signing in…"
	MsgRegistering        = "Registering…"
	MsgAuthFailed         = "Auth failed"
)

// DefaultCloseDelay keeps the success line visible before the login modal
// closes.
const DefaultCloseDelay = 800 * time.Millisecond

type Client interface {
	Login(ctx context.Context, username, password string) (*api.Identity, error)
	Register(ctx context.Context, username, password string) (*api.Identity, error)
	Logout(ctx context.Context) error
}

type Sessions interface {
	Get() session.Session
	Set(session.Session) error
	Clear() error
}

// Modal is the login overlay.
type Modal interface {
	CloseAfter(d time.Duration)
}

// Status is the login modal's notification line.
type Status struct {
	Kind    string // info, success or error
	Message string
	// Busy disables both the login and register buttons.
	Busy bool
}

type Options struct {
	Client     Client
	Sessions   Sessions
	Modal      Modal
	CloseDelay time.Duration
	Logger     *zap.Logger
}

type Flow struct {
	opts Options

	mu        sync.Mutex
	status    Status
	listeners []func(Status)
}

func NewFlow(opts Options) *Flow {
	if opts.CloseDelay <= 0 {
		opts.CloseDelay = DefaultCloseDelay
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Flow{opts: opts}
}

func (f *Flow) OnChange(fn func(Status)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
}

func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Reset clears the notification line; the login modal calls it on open.
func (f *Flow) Reset() {
	f.set(Status{})
}

// Login signs in and stores the session. Subscribers of the session store
// (history, header) re-render from there.
func (f *Flow) Login(ctx context.Context, username, password string) (session.Session, error) {
	return f.authenticate(ctx, "login", username, password)
}

// Register creates an account. When the server answers with an identity the
// user is signed in straight away.
func (f *Flow) Register(ctx context.Context, username, password string) (session.Session, error) {
	return f.authenticate(ctx, "register", username, password)
}

func (f *Flow) authenticate(ctx context.Context, action, username, password string) (session.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		f.set(Status{Kind: "error", Message: MsgMissingCredentials})
		return session.Session{}, api.NewValidationError("credentials", MsgMissingCredentials)
	}

	pending, done := MsgSigningIn, "Signed in"
	call := f.opts.Client.Login
	if action == "register" {
		pending, done = MsgRegistering, "Registered"
		call = f.opts.Client.Register
	}
	f.set(Status{Kind: "info", Message: pending, Busy: true})

	ident, err := call(ctx, username, password)
	if err != nil {
		msg := api.Message(err, MsgAuthFailed)
		f.opts.Logger.Info("authentication rejected", zap.String("action", action), zap.String("username", username), zap.Error(err))
		f.set(Status{Kind: "error", Message: msg})
		return session.Session{}, err
	}

	sess := f.opts.Sessions.Get()
	if id := ident.EffectiveID(); id != "" {
		name := ident.Username
		if name == "" {
			name = username
		}
		sess = session.Session{UserID: id, Username: name}
		if err := f.opts.Sessions.Set(sess); err != nil {
			f.opts.Logger.Error("store session", zap.Error(err))
			f.set(Status{Kind: "error", Message: err.Error()})
			return session.Session{}, err
		}
	}

	f.opts.Logger.Info("authenticated", zap.String("action", action), zap.String("user_id", sess.UserID.String()))
	f.set(Status{Kind: "success", Message: done + " — " + displayName(ident, username)})
	if f.opts.Modal != nil {
		f.opts.Modal.CloseAfter(f.opts.CloseDelay)
	}
	return sess, nil
}

// Logout tells the server without waiting on its answer and drops the local
// session. The returned channel closes once the server call has finished.
func (f *Flow) Logout(ctx context.Context) (<-chan struct{}, error) {
	sent := make(chan struct{})
	go func() {
		defer close(sent)
		if err := f.opts.Client.Logout(context.WithoutCancel(ctx)); err != nil {
			f.opts.Logger.Debug("logout request failed", zap.Error(err))
		}
	}()
	if err := f.opts.Sessions.Clear(); err != nil {
		return sent, err
	}
	f.set(Status{})
	return sent, nil
}

func displayName(ident *api.Identity, typed string) string {
	if ident.Username != "" {
		return ident.Username
	}
	return typed
}

func (f *Flow) set(st Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = st
	for _, fn := range f.listeners {
		fn(st)
	}
}
