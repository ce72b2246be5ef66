// Package history shows a user's bookings and lets them cancel one or clear
// them all. Every successful change is followed by a full re-fetch; the list
// is never patched locally.
package history

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"hospital-appointments/api"
)

// Placeholder says what the panel shows instead of, or alongside, a list.
type Placeholder int

const (
	Listed Placeholder = iota
	Loading
	SignedOut
	Unavailable
	Empty
)

// Placeholder texts. A failed fetch and an empty answer are worded so a
// transient error does not alarm anyone.
const (
	MsgLoading      = "Loading bookings…"
	MsgSignedOut    = "Sign in to see your bookings."
	MsgUnavailable  = "No bookings or failed to load."
	MsgEmpty        = "No bookings found."
	MsgConfirmOne   = "Cancel this booking?"
	MsgConfirmAll   = "Clear all your booking history? This cannot be undone."
	MsgCancelFailed = "Cancel failed"
	MsgClearFailed  = "Clear failed"
)

// ErrSuperseded marks a fetch whose answer arrived after a newer one began.
var ErrSuperseded = errors.New("superseded by a newer refresh")

func (p Placeholder) Message() string {
	switch p {
	case Loading:
		return MsgLoading
	case SignedOut:
		return MsgSignedOut
	case Unavailable:
		return MsgUnavailable
	case Empty:
		return MsgEmpty
	}
	return ""
}

type Client interface {
	History(ctx context.Context, userID api.ID) ([]api.Booking, error)
	CancelAppointment(ctx context.Context, appointmentID, userID api.ID) error
	ClearHistory(ctx context.Context, userID api.ID) error
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(prompt string) bool
}

type Notifier interface {
	Notify(kind, message string)
}

// Entry is one listed booking. Busy disables its cancel control.
type Entry struct {
	Booking api.Booking
	Busy    bool
}

// CanCancel reports whether the entry exposes an enabled cancel control.
func (e Entry) CanCancel() bool { return e.Booking.Cancellable() && !e.Busy }

// View is what renderers draw.
type View struct {
	UserID      api.ID
	Placeholder Placeholder
	Entries     []Entry
	ClearBusy   bool
	// Err is the last cancel/clear failure, shown next to its control.
	Err string
}

type Options struct {
	Client    Client
	Confirmer Confirmer
	Notifier  Notifier
	Logger    *zap.Logger
	// UserID is the user already signed in when the panel is built. The
	// panel starts out loading their bookings instead of signed out.
	UserID api.ID
}

type Panel struct {
	opts Options

	mu        sync.Mutex
	view      View
	gen       uint64
	listeners []func(View)
}

func New(opts Options) *Panel {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	view := View{Placeholder: SignedOut}
	if opts.UserID != "" {
		view = View{UserID: opts.UserID, Placeholder: Loading}
	}
	return &Panel{opts: opts, view: view}
}

func (p *Panel) OnChange(fn func(View)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *Panel) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Refresh replaces the list with the server's bookings for userID. Without a
// user it shows the sign-in placeholder and sends nothing.
func (p *Panel) Refresh(ctx context.Context, userID api.ID) error {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	if userID == "" {
		p.setLocked(View{Placeholder: SignedOut})
		p.mu.Unlock()
		return nil
	}
	p.setLocked(View{UserID: userID, Placeholder: Loading})
	p.mu.Unlock()

	bookings, err := p.opts.Client.History(ctx, userID)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return ErrSuperseded
	}
	switch {
	case err != nil:
		p.opts.Logger.Warn("history fetch failed", zap.String("user_id", userID.String()), zap.Error(err))
		p.setLocked(View{UserID: userID, Placeholder: Unavailable})
		return err
	case len(bookings) == 0:
		p.setLocked(View{UserID: userID, Placeholder: Empty})
	default:
		entries := make([]Entry, len(bookings))
		for i, b := range bookings {
			entries[i] = Entry{Booking: b}
		}
		p.setLocked(View{UserID: userID, Placeholder: Listed, Entries: entries})
	}
	return nil
}

// Cancel cancels one listed booking after the user confirms, then re-fetches.
func (p *Panel) Cancel(ctx context.Context, bookingID api.ID) error {
	p.mu.Lock()
	userID := p.view.UserID
	idx := p.indexLocked(bookingID)
	switch {
	case userID == "":
		p.mu.Unlock()
		return &api.AuthRequiredError{Action: "cancelling a booking"}
	case idx < 0:
		p.mu.Unlock()
		return api.NewValidationError("booking", "booking "+bookingID.String()+" is not listed")
	case !p.view.Entries[idx].CanCancel():
		p.mu.Unlock()
		return api.NewValidationError("booking", "booking "+bookingID.String()+" cannot be cancelled")
	}
	// Busy from here on, so a second Cancel of the same entry is refused
	// while this one is still asking.
	p.view.Entries[idx].Busy = true
	p.view.Err = ""
	p.emitLocked()
	p.mu.Unlock()

	if !p.confirm(MsgConfirmOne) {
		p.mu.Lock()
		if i := p.indexLocked(bookingID); i >= 0 {
			p.view.Entries[i].Busy = false
			p.emitLocked()
		}
		p.mu.Unlock()
		return nil
	}

	if err := p.opts.Client.CancelAppointment(ctx, bookingID, userID); err != nil {
		msg := api.Message(err, MsgCancelFailed)
		p.opts.Logger.Warn("cancel failed", zap.String("booking_id", bookingID.String()), zap.Error(err))
		p.mu.Lock()
		if i := p.indexLocked(bookingID); i >= 0 {
			p.view.Entries[i].Busy = false
		}
		p.view.Err = msg
		p.emitLocked()
		p.mu.Unlock()
		p.notify("error", msg)
		return err
	}

	p.opts.Logger.Info("booking cancelled", zap.String("booking_id", bookingID.String()))
	p.refreshAfterChange(ctx, userID)
	return nil
}

// ClearAll removes every booking of userID after the user confirms, then
// re-fetches.
func (p *Panel) ClearAll(ctx context.Context, userID api.ID) error {
	if userID == "" {
		return &api.AuthRequiredError{Action: "clearing history"}
	}
	if !p.confirm(MsgConfirmAll) {
		return nil
	}

	p.mu.Lock()
	p.view.ClearBusy = true
	p.view.Err = ""
	p.emitLocked()
	p.mu.Unlock()

	if err := p.opts.Client.ClearHistory(ctx, userID); err != nil {
		msg := api.Message(err, MsgClearFailed)
		p.opts.Logger.Warn("clear history failed", zap.String("user_id", userID.String()), zap.Error(err))
		p.mu.Lock()
		p.view.ClearBusy = false
		p.view.Err = msg
		p.emitLocked()
		p.mu.Unlock()
		p.notify("error", msg)
		return err
	}

	p.opts.Logger.Info("history cleared", zap.String("user_id", userID.String()))
	p.refreshAfterChange(ctx, userID)
	return nil
}

func (p *Panel) refreshAfterChange(ctx context.Context, userID api.ID) {
	if err := p.Refresh(ctx, userID); err != nil && !errors.Is(err, ErrSuperseded) {
		p.opts.Logger.Warn("refresh after change failed", zap.Error(err))
	}
}

func (p *Panel) confirm(prompt string) bool {
	if p.opts.Confirmer == nil {
		return false
	}
	return p.opts.Confirmer.Confirm(prompt)
}

func (p *Panel) notify(kind, msg string) {
	if p.opts.Notifier != nil {
		p.opts.Notifier.Notify(kind, msg)
	}
}

func (p *Panel) indexLocked(id api.ID) int {
	for i, e := range p.view.Entries {
		if e.Booking.ID == id {
			return i
		}
	}
	return -1
}

func (p *Panel) snapshotLocked() View {
	v := p.view
	v.Entries = append([]Entry(nil), p.view.Entries...)
	return v
}

func (p *Panel) setLocked(v View) {
	p.view = v
	p.emitLocked()
}

func (p *Panel) emitLocked() {
	if len(p.listeners) == 0 {
		return
	}
	v := p.snapshotLocked()
	for _, fn := range p.listeners {
		fn(v)
	}
}
