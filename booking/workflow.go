// Package booking runs one appointment booking attempt from the booking modal
// to the server's answer.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"hospital-appointments/api"
	"hospital-appointments/session"
)

type State int

const (
	Idle State = iota
	Validating
	AuthRequired
	Submitting
	Success
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case AuthRequired:
		return "auth_required"
	case Submitting:
		return "submitting"
	case Success:
		return "success"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// User-facing messages.
const (
	MsgChooseDate = "Please choose date and time"
	MsgSignIn     = "Please register or log in before booking."
	MsgSubmitting = "Booking…"
	MsgFailed     = "Booking failed"
	MsgNotify     = "Booking successful"
	MsgNoHospital = "Select a hospital first"
	MsgNotOpen    = "Choose a doctor to book first"
)

// DefaultCloseDelay leaves the confirmation readable before the modal goes.
const DefaultCloseDelay = 1200 * time.Millisecond

// ErrInFlight is returned while a submission is pending; the confirm control
// is disabled for that time.
var ErrInFlight = errors.New("booking already in progress")

// Target is what the booking modal is opened with and read back from at
// confirm time.
type Target struct {
	HospitalID   api.ID
	HospitalName string
	DoctorName   string
}

type Booker interface {
	Book(ctx context.Context, req api.BookingRequest) (*api.BookingResult, error)
}

type Sessions interface {
	Get() session.Session
}

// Selector yields the hospital currently selected in the directory.
type Selector interface {
	Selected() (api.Hospital, bool)
}

// Modal is the booking overlay.
type Modal interface {
	Open(params any)
	Params() any
	IsOpen() bool
	CloseAfter(d time.Duration)
}

// Opener opens another modal; the login modal here.
type Opener interface {
	Open(params any)
}

type Notifier interface {
	Notify(kind, message string)
}

// Status is the snapshot renderers draw.
type Status struct {
	State         State
	Message       string
	Target        Target
	AppointmentID api.ID
	// ConfirmDisabled is true only while submitting.
	ConfirmDisabled bool
}

type Options struct {
	Client     Booker
	Sessions   Sessions
	Directory  Selector
	Modal      Modal
	Login      Opener
	Notifier   Notifier
	CloseDelay time.Duration
	Logger     *zap.Logger
}

type Workflow struct {
	opts Options

	mu        sync.Mutex
	status    Status
	attempt   uint64
	listeners []func(Status)
}

func New(opts Options) *Workflow {
	if opts.CloseDelay <= 0 {
		opts.CloseDelay = DefaultCloseDelay
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Workflow{opts: opts}
}

// OnChange registers fn to receive every status change.
func (w *Workflow) OnChange(fn func(Status)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

func (w *Workflow) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Open starts a fresh attempt for doctor at the selected hospital. The doctor
// is shown but never sent.
func (w *Workflow) Open(doctor api.Doctor) error {
	hospital, ok := w.opts.Directory.Selected()
	if !ok {
		return api.NewValidationError("hospital", MsgNoHospital)
	}
	if !doctor.IsAvailable {
		return api.NewValidationError("doctor", doctor.Name+" is not available")
	}

	target := Target{HospitalID: hospital.ID, HospitalName: hospital.Name, DoctorName: doctor.Name}
	w.mu.Lock()
	w.attempt++
	w.setLocked(Status{State: Idle, Target: target})
	w.mu.Unlock()

	w.opts.Modal.Open(target)
	return nil
}

// Confirm validates and submits the attempt the modal was opened for.
func (w *Workflow) Confirm(ctx context.Context, scheduledAt, note string) (Status, error) {
	w.mu.Lock()
	if w.status.State == Submitting {
		st := w.status
		w.mu.Unlock()
		return st, ErrInFlight
	}
	target, ok := w.opts.Modal.Params().(Target)
	if !ok || !w.opts.Modal.IsOpen() {
		w.setLocked(Status{State: Failed, Message: MsgNotOpen})
		st := w.status
		w.mu.Unlock()
		return st, api.NewValidationError("doctor", MsgNotOpen)
	}
	attempt := w.attempt
	w.setLocked(Status{State: Validating, Target: target})

	if strings.TrimSpace(scheduledAt) == "" {
		w.setLocked(Status{State: Failed, Message: MsgChooseDate, Target: target})
		st := w.status
		w.mu.Unlock()
		return st, api.NewValidationError("scheduled_at", MsgChooseDate)
	}

	sess := w.opts.Sessions.Get()
	if !sess.Active() {
		w.setLocked(Status{State: AuthRequired, Message: MsgSignIn, Target: target})
		st := w.status
		w.mu.Unlock()
		if w.opts.Login != nil {
			w.opts.Login.Open(nil)
		}
		return st, &api.AuthRequiredError{Action: "booking"}
	}

	w.setLocked(Status{State: Submitting, Message: MsgSubmitting, Target: target, ConfirmDisabled: true})
	w.mu.Unlock()

	req := api.BookingRequest{
		HospitalID:  target.HospitalID,
		ScheduledAt: scheduledAt,
		UserID:      sess.UserID,
		Note:        strings.TrimSpace(note),
	}
	w.opts.Logger.Info("submitting booking",
		zap.String("hospital_id", req.HospitalID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.String("scheduled_at", req.ScheduledAt))
	res, err := w.opts.Client.Book(ctx, req)

	w.mu.Lock()
	if attempt != w.attempt {
		// The modal was reopened for another doctor; this answer is history.
		w.mu.Unlock()
		w.opts.Logger.Info("booking answered after modal was reopened", zap.Error(err))
		if err != nil {
			return Status{State: Failed, Target: target, Message: api.Message(err, MsgFailed)}, err
		}
		return Status{State: Success, Target: target, AppointmentID: res.EffectiveID()}, nil
	}

	if err != nil {
		msg := api.Message(err, MsgFailed)
		w.setLocked(Status{State: Failed, Message: msg, Target: target})
		st := w.status
		w.mu.Unlock()
		w.opts.Logger.Warn("booking failed", zap.Error(err))
		w.notify("error", msg)
		return st, err
	}

	id := res.EffectiveID()
	shown := id.String()
	if shown == "" {
		shown = "unknown"
	}
	w.setLocked(Status{State: Success, Message: "Booked — id: " + shown, Target: target, AppointmentID: id})
	st := w.status
	w.mu.Unlock()

	w.notify("success", MsgNotify)
	w.opts.Modal.CloseAfter(w.opts.CloseDelay)
	return st, nil
}

func (w *Workflow) notify(kind, msg string) {
	if w.opts.Notifier != nil {
		w.opts.Notifier.Notify(kind, msg)
	}
}

func (w *Workflow) setLocked(st Status) {
	w.status = st
	for _, fn := range w.listeners {
		fn(st)
	}
}
