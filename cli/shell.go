package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"hospital-appointments/api"
	"hospital-appointments/auth"
	"hospital-appointments/booking"
	"hospital-appointments/directory"
	"hospital-appointments/history"
	"hospital-appointments/modal"
	"hospital-appointments/session"
)

// shell is the interactive renderer. It redraws the header and history
// whenever the session changes.
type shell struct {
	rt  *runtime
	ctx context.Context

	// live is set while raw-mode search owns the terminal.
	live atomic.Bool
}

func newShell(rt *runtime) *shell { return &shell{rt: rt} }

func (s *shell) run(ctx context.Context) error {
	s.ctx = ctx
	a, out := s.rt.app, s.rt.out

	a.Header.OnChange(func(st auth.HeaderState) {
		renderHeader(out, st, a.Sessions.Get().Username)
	})
	// Subscribed after the app, so history has been re-fetched by now.
	unsubscribe := a.Sessions.Subscribe(func(session.Session) {
		fmt.Fprintf(out, "History: %s\n", summarizeHistory(a.History.View()))
	})
	defer unsubscribe()
	a.Directory.OnChange(func(st directory.State) {
		if s.live.Load() && !st.Loading {
			fmt.Fprintf(out, "\r\n%d result(s) for '%s'\r\n", len(st.Hospitals), st.Locality)
		}
	})

	fmt.Fprintln(out, "Welcome to hospctl!")
	renderHeader(out, a.Header.State(), a.Sessions.Get().Username)
	if err := a.Start(ctx); err != nil {
		s.rt.logger.Warn("initial history fetch failed", zap.Error(err))
	}
	s.printHelp()

	for {
		line, ok := s.rt.in.line("\n> ")
		if !ok {
			return nil
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
		arg = strings.TrimSpace(arg)

		switch cmd {
		case "search":
			s.handleSearch(arg)
		case "live":
			s.handleLiveSearch()
		case "select":
			s.handleSelect(arg)
		case "doctors":
			renderDoctors(out, s.selected(), a.Directory.State().Doctors)
		case "book":
			s.handleBook(arg)
		case "history":
			a.History.Refresh(ctx, a.Sessions.Get().UserID)
			renderHistory(out, a.History.View())
		case "cancel":
			s.handleCancel(arg)
		case "clear":
			s.handleClear()
		case "account", "login":
			s.handleAccount()
		case "logout":
			s.handleLogout()
		case "theme":
			t, err := a.Theme.Toggle()
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				break
			}
			fmt.Fprintf(out, "Theme: %s %s\n", t, t.Next().Icon())
		case "help":
			s.printHelp()
		case "":
		case "exit", "quit":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		default:
			fmt.Fprintln(out, "Unknown command. Type 'help' for the list.")
		}
	}
}

func (s *shell) printHelp() {
	out := s.rt.out
	fmt.Fprintln(out, "Available commands:")
	fmt.Fprintln(out, "  Directory: search <locality>, live, select <hospital-id>, doctors")
	fmt.Fprintln(out, "  Bookings:  book <doctor-id>, history, cancel <booking-id>, clear")
	fmt.Fprintln(out, "  Account:   account, logout, theme")
	fmt.Fprintln(out, "  System:    help, exit")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Tips:")
	fmt.Fprintln(out, "  • Inside a form: type a value, 'tab'/'shift+tab' to move, Enter on a button to press it, 'esc' to close")
}

func (s *shell) handleSearch(locality string) {
	a := s.rt.app
	a.SearchField.Focus()
	hospitals, err := a.Directory.SearchHospitals(s.ctx, locality)
	if errors.Is(err, directory.ErrSuperseded) {
		return
	}
	if err != nil {
		fmt.Fprintf(s.rt.out, "Error: %s\n", api.Message(err, "Search failed"))
		return
	}
	renderHospitals(s.rt.out, locality, hospitals)
}

func (s *shell) handleSelect(arg string) {
	a := s.rt.app
	h, ok := a.Directory.FindHospital(api.ID(arg))
	if !ok {
		fmt.Fprintf(s.rt.out, "Hospital %s is not in the current results.\n", arg)
		return
	}
	doctors, err := a.Directory.SelectHospital(s.ctx, h)
	if errors.Is(err, directory.ErrSuperseded) {
		return
	}
	if err != nil {
		fmt.Fprintf(s.rt.out, "Error: %s\n", api.Message(err, "Could not load doctors"))
		return
	}
	renderDoctors(s.rt.out, h, doctors)
}

func (s *shell) selected() api.Hospital {
	h, _ := s.rt.app.Directory.Selected()
	return h
}

// handleLiveSearch searches as the user types. It needs a terminal for raw
// mode; on anything else it reads one line and submits it.
func (s *shell) handleLiveSearch() {
	a := s.rt.app
	a.SearchField.Focus()
	box := a.NewSearchBox(s.ctx)
	defer box.Close()

	fd, ok := s.rt.in.terminal()
	if !ok {
		line, ok := s.rt.in.line("search: ")
		if !ok {
			return
		}
		box.Input(line)
		s.finishLive(box)
		return
	}

	s.live.Store(true)
	fmt.Fprint(s.rt.out, "search (Enter to finish, Esc to cancel): ")
	var submit bool
	err := withRawMode(fd, func() error {
		var err error
		submit, err = liveType(byteReader{s.rt.in.in}, box, s.rt.out)
		return err
	})
	s.live.Store(false)
	fmt.Fprintln(s.rt.out)
	if err != nil {
		fmt.Fprintf(s.rt.out, "Error: %v\n", err)
		return
	}
	if submit {
		s.finishLive(box)
	}
}

func (s *shell) finishLive(box *directory.SearchBox) {
	if s.rt.app.Directory.Loading() {
		fmt.Fprintln(s.rt.out, "Searching…")
	}
	if err := box.Submit(); err != nil {
		fmt.Fprintf(s.rt.out, "Error: %s\n", api.Message(err, "Search failed"))
		return
	}
	st := s.rt.app.Directory.State()
	renderHospitals(s.rt.out, st.Locality, st.Hospitals)
}

// liveType feeds keystrokes from r into box until Enter (submit true), Esc or
// Ctrl-C. Each edit re-arms the debounce. Multibyte input is collected until
// a whole rune has arrived.
func liveType(r io.ByteReader, box *directory.SearchBox, out io.Writer) (submit bool, err error) {
	text := []rune(box.Text())
	var pending []byte
	for {
		b, err := r.ReadByte()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if b >= utf8.RuneSelf || len(pending) > 0 {
			pending = append(pending, b)
			if !utf8.FullRune(pending) {
				continue
			}
			ru, _ := utf8.DecodeRune(pending)
			pending = pending[:0]
			if ru == utf8.RuneError {
				continue
			}
			text = append(text, ru)
			fmt.Fprint(out, string(ru))
			box.Input(string(text))
			continue
		}
		switch {
		case b == '\r' || b == '\n':
			return true, nil
		case b == 0x1b || b == 0x03:
			return false, nil
		case b == 0x7f || b == 0x08:
			if len(text) == 0 {
				continue
			}
			text = text[:len(text)-1]
			fmt.Fprint(out, "\b \b")
		case b >= 0x20:
			text = append(text, rune(b))
			fmt.Fprint(out, string(b))
		default:
			continue
		}
		box.Input(string(text))
	}
}

type byteReader struct{ r io.Reader }

func (b byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	for {
		n, err := b.r.Read(buf[:])
		if n == 1 {
			return buf[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

func (s *shell) handleBook(arg string) {
	a := s.rt.app
	a.SearchField.Focus()
	if err := a.OpenBooking(api.ID(arg)); err != nil {
		fmt.Fprintf(s.rt.out, "Error: %v\n", err)
		return
	}
	renderBooking(s.rt.out, a.Booking.Status())

	form := a.BookingForm
	fields := []*modal.Widget{form.Date, form.Note, form.Confirm, form.Cancel}
	s.driveModal(a.BookingModal, fields, s.rt.cfg.BookingCloseDelay, func(w *modal.Widget) bool {
		switch w {
		case form.Confirm:
			st, err := a.SubmitBooking(s.ctx)
			if errors.Is(err, booking.ErrInFlight) {
				return false
			}
			renderBooking(s.rt.out, st)
			if st.State == booking.AuthRequired {
				s.driveLogin()
			}
			return st.State == booking.Success
		case form.Cancel:
			a.BookingModal.Close()
		}
		return false
	})
}

func (s *shell) handleAccount() {
	a := s.rt.app
	if href := a.Header.Activate(); href != "" {
		fmt.Fprintf(s.rt.out, "Dashboard: %s\n", href)
		return
	}
	s.driveLogin()
}

// driveLogin runs the login modal; Activate or a booking attempt opened it.
func (s *shell) driveLogin() {
	a := s.rt.app
	form := a.LoginForm
	fields := []*modal.Widget{form.Username, form.Password, form.Login, form.Register}
	s.driveModal(a.LoginModal, fields, s.rt.cfg.LoginCloseDelay, func(w *modal.Widget) bool {
		if w.Disabled() {
			return false
		}
		_, err := a.SubmitLogin(s.ctx, w == form.Register)
		fmt.Fprintln(s.rt.out, a.Auth.Status().Message)
		return err == nil
	})
}

// driveModal reads lines into the focused field until ctrl closes. A line
// entered on one of the two trailing buttons presses it; press reports
// whether the modal is now closing on its own after closeDelay.
func (s *shell) driveModal(ctrl *modal.Controller, fields []*modal.Widget, closeDelay time.Duration, press func(*modal.Widget) bool) {
	a, out := s.rt.app, s.rt.out
	s.awaitFocus(ctrl, fields)

	for ctrl.IsOpen() {
		w := a.Screen.Active()
		name := "?"
		if w != nil {
			name = w.Name()
		}
		var (
			line string
			ok   bool
		)
		if w == a.LoginForm.Password {
			var err error
			line, err = s.rt.in.readPassword("[" + name + "]> ")
			ok = err == nil
		} else {
			line, ok = s.rt.in.line("[" + name + "]> ")
		}
		if !ok {
			ctrl.Close()
			return
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "esc":
			a.Screen.Press(modal.Key{Name: modal.KeyEscape})
			continue
		case "tab":
			a.Screen.Press(modal.Key{Name: modal.KeyTab})
			continue
		case "shift+tab":
			a.Screen.Press(modal.Key{Name: modal.KeyTab, Shift: true})
			continue
		}

		if w == nil || !isButton(w, fields) {
			if w != nil {
				w.SetValue(strings.TrimSpace(line))
			}
			a.Screen.Press(modal.Key{Name: modal.KeyTab})
			continue
		}
		if press(w) {
			awaitClose(ctrl, closeDelay)
		}
	}
	fmt.Fprintln(out, "(closed)")
}

// awaitFocus waits out the settle delay so typing lands in the first field.
func (s *shell) awaitFocus(ctrl *modal.Controller, fields []*modal.Widget) {
	deadline := time.Now().Add(time.Second)
	for ctrl.IsOpen() && time.Now().Before(deadline) {
		active := s.rt.app.Screen.Active()
		for _, f := range fields {
			if f == active {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// awaitClose waits for a delayed close so the next prompt is not drawn
// inside a modal that is about to go.
func awaitClose(ctrl *modal.Controller, delay time.Duration) {
	deadline := time.Now().Add(delay + 100*time.Millisecond)
	for ctrl.IsOpen() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}

func (s *shell) handleCancel(arg string) {
	a := s.rt.app
	if err := a.History.Cancel(s.ctx, api.ID(arg)); err != nil {
		fmt.Fprintf(s.rt.out, "Error: %s\n", api.Message(err, history.MsgCancelFailed))
		return
	}
	renderHistory(s.rt.out, a.History.View())
}

func (s *shell) handleClear() {
	a := s.rt.app
	if err := a.History.ClearAll(s.ctx, a.Sessions.Get().UserID); err != nil {
		fmt.Fprintf(s.rt.out, "Error: %s\n", api.Message(err, history.MsgClearFailed))
		return
	}
	renderHistory(s.rt.out, a.History.View())
}

func (s *shell) handleLogout() {
	if _, err := s.rt.app.Logout(s.ctx); err != nil {
		fmt.Fprintf(s.rt.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(s.rt.out, "Signed out.")
}

func isButton(w *modal.Widget, fields []*modal.Widget) bool {
	// Every form lists its two buttons last.
	n := len(fields)
	return n >= 2 && (w == fields[n-1] || w == fields[n-2])
}

func summarizeHistory(v history.View) string {
	if v.Placeholder != history.Listed {
		return v.Placeholder.Message()
	}
	open := 0
	for _, e := range v.Entries {
		if e.Booking.Cancellable() {
			open++
		}
	}
	return fmt.Sprintf("%d booking(s), %d active", len(v.Entries), open)
}
