// Package app wires the client together: one durable store, one session, one
// API client, and every view component subscribed to the session.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"hospital-appointments/api"
	"hospital-appointments/auth"
	"hospital-appointments/booking"
	"hospital-appointments/config"
	"hospital-appointments/directory"
	"hospital-appointments/history"
	"hospital-appointments/modal"
	"hospital-appointments/session"
	"hospital-appointments/storage"
	"hospital-appointments/theme"
)

// Notifier shows a transient message outside any modal.
type Notifier interface {
	Notify(kind, message string)
}

type Options struct {
	Config    *config.Config
	Logger    *zap.Logger
	Confirmer history.Confirmer
	Notifier  Notifier
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// BookingForm is the booking modal's fields.
type BookingForm struct {
	Date, Note, Confirm, Cancel *modal.Widget
}

// LoginForm is the login modal's fields.
type LoginForm struct {
	Username, Password, Login, Register *modal.Widget
}

// App is a thin façade over every component, keeping renderer code simple.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB        *storage.Database
	Client    *api.Client
	Sessions  *session.Store
	Theme     *theme.Preference
	Directory *directory.Search
	Booking   *booking.Workflow
	History   *history.Panel
	Auth      *auth.Flow
	Header    *auth.Header

	Screen       *modal.Screen
	SearchField  *modal.Widget
	BookingModal *modal.Controller
	LoginModal   *modal.Controller
	BookingForm  BookingForm
	LoginForm    LoginForm

	mu          sync.Mutex
	ctx         context.Context
	unsubscribe func()
}

// New opens (or creates) the state database at cfg.StatePath and builds
// every component on top of it.
func New(opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, errors.New("app: config is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	db, err := storage.NewDatabase(opts.Config.StatePath)
	if err != nil {
		return nil, err
	}

	a := &App{Config: opts.Config, Logger: opts.Logger, DB: db, ctx: context.Background()}
	if err := a.build(opts); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(opts Options) error {
	cfg, logger := a.Config, a.Logger

	sessions, err := session.Open(a.DB, logger.Named("session"))
	if err != nil {
		return err
	}
	a.Sessions = sessions

	if a.Theme, err = theme.Load(a.DB, cfg.ThemeDefault); err != nil {
		return err
	}

	clientOpts := []api.ClientOption{
		api.WithLogger(logger.Named("api")),
		api.WithBreaker(api.BreakerSettings{Failures: cfg.BreakerFailures, Cooldown: cfg.BreakerCooldown}),
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(opts.HTTPClient))
	}
	a.Client = api.NewClient(cfg.APIBaseURL, clientOpts...)

	a.Directory = directory.New(a.Client, logger.Named("directory"))
	a.buildModals(cfg, logger)

	a.Booking = booking.New(booking.Options{
		Client:     a.Client,
		Sessions:   a.Sessions,
		Directory:  a.Directory,
		Modal:      a.BookingModal,
		Login:      a.LoginModal,
		Notifier:   opts.Notifier,
		CloseDelay: cfg.BookingCloseDelay,
		Logger:     logger.Named("booking"),
	})
	a.Booking.OnChange(func(st booking.Status) {
		a.BookingForm.Confirm.SetDisabled(st.ConfirmDisabled)
	})

	a.History = history.New(history.Options{
		Client:    a.Client,
		Confirmer: opts.Confirmer,
		Notifier:  opts.Notifier,
		Logger:    logger.Named("history"),
		UserID:    a.Sessions.Get().UserID,
	})

	a.Auth = auth.NewFlow(auth.Options{
		Client:     a.Client,
		Sessions:   a.Sessions,
		Modal:      a.LoginModal,
		CloseDelay: cfg.LoginCloseDelay,
		Logger:     logger.Named("auth"),
	})
	a.Auth.OnChange(func(st auth.Status) {
		a.LoginForm.Login.SetDisabled(st.Busy)
		a.LoginForm.Register.SetDisabled(st.Busy)
	})

	// History follows the session; the header subscribes itself.
	a.unsubscribe = a.Sessions.Subscribe(func(s session.Session) {
		a.refreshHistory(s.UserID)
	})
	a.Header = auth.NewHeader(a.Sessions, a.LoginModal)
	return nil
}

func (a *App) buildModals(cfg *config.Config, logger *zap.Logger) {
	a.Screen = modal.NewScreen()
	a.SearchField = a.Screen.Add("search")

	bf := BookingForm{
		Date:    a.Screen.Add("appt-date"),
		Note:    a.Screen.Add("appt-note"),
		Confirm: a.Screen.Add("appt-confirm"),
		Cancel:  a.Screen.Add("appt-cancel"),
	}
	a.BookingForm = bf
	a.BookingModal = modal.New(modal.Options{
		Name:       "booking",
		Document:   a.Screen,
		Focusables: func() []modal.Element { return []modal.Element{bf.Date, bf.Note, bf.Confirm, bf.Cancel} },
		Initial:    func() modal.Element { return bf.Date },
		Settle:     cfg.BookingSettle,
		OnOpen: func(any) {
			bf.Date.SetValue("")
			bf.Note.SetValue("")
			bf.Confirm.SetDisabled(false)
		},
		Logger: logger.Named("modal"),
	})

	lf := LoginForm{
		Username: a.Screen.Add("login-username"),
		Password: a.Screen.Add("login-password"),
		Login:    a.Screen.Add("login-submit"),
		Register: a.Screen.Add("login-register"),
	}
	a.LoginForm = lf
	a.LoginModal = modal.New(modal.Options{
		Name:       "login",
		Document:   a.Screen,
		Focusables: func() []modal.Element { return []modal.Element{lf.Username, lf.Password, lf.Login, lf.Register} },
		Initial:    func() modal.Element { return lf.Username },
		Settle:     cfg.LoginSettle,
		OnOpen: func(any) {
			lf.Username.SetValue("")
			lf.Password.SetValue("")
			lf.Login.SetDisabled(false)
			lf.Register.SetDisabled(false)
			if a.Auth != nil {
				a.Auth.Reset()
			}
		},
		Logger: logger.Named("modal"),
	})
}

// Start renders the restored session: a signed-in user gets their history
// fetched immediately. ctx bounds every request made on behalf of session
// changes from here on.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()

	err := a.History.Refresh(ctx, a.Sessions.Get().UserID)
	if err != nil && !errors.Is(err, history.ErrSuperseded) {
		return err
	}
	return nil
}

func (a *App) refreshHistory(userID api.ID) {
	a.mu.Lock()
	ctx := a.ctx
	a.mu.Unlock()
	if err := a.History.Refresh(ctx, userID); err != nil && !errors.Is(err, history.ErrSuperseded) {
		a.Logger.Warn("history refresh after session change failed", zap.Error(err))
	}
}

// NewSearchBox returns a debounced search field over the directory. The
// caller closes it when the view goes away.
func (a *App) NewSearchBox(ctx context.Context) *directory.SearchBox {
	return directory.NewSearchBox(ctx, a.Directory, a.Config.SearchDebounce, a.Logger.Named("search"))
}

// OpenBooking opens the booking modal for a doctor listed at the selected
// hospital.
func (a *App) OpenBooking(doctorID api.ID) error {
	doc, ok := a.Directory.FindDoctor(doctorID)
	if !ok {
		return api.NewValidationError("doctor", "doctor "+doctorID.String()+" is not listed")
	}
	return a.Booking.Open(doc)
}

// SubmitBooking confirms the open booking modal with its current field values.
func (a *App) SubmitBooking(ctx context.Context) (booking.Status, error) {
	return a.Booking.Confirm(ctx, a.BookingForm.Date.Value(), a.BookingForm.Note.Value())
}

// SubmitLogin runs the login modal's action with its current field values.
func (a *App) SubmitLogin(ctx context.Context, register bool) (session.Session, error) {
	user, pass := a.LoginForm.Username.Value(), a.LoginForm.Password.Value()
	if register {
		return a.Auth.Register(ctx, user, pass)
	}
	return a.Auth.Login(ctx, user, pass)
}

// Logout drops the session; the server is told in the background.
func (a *App) Logout(ctx context.Context) (<-chan struct{}, error) {
	return a.Auth.Logout(ctx)
}

// Close closes the underlying database.
func (a *App) Close() error {
	a.Header.Close()
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	a.BookingModal.Close()
	a.LoginModal.Close()
	return a.DB.Close()
}
