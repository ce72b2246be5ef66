package booking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hospital-appointments/api"
	"hospital-appointments/modal"
	"hospital-appointments/session"
	"hospital-appointments/storage"
)

type fixedSelector struct {
	h  api.Hospital
	ok bool
}

func (s fixedSelector) Selected() (api.Hospital, bool) { return s.h, s.ok }

type recordingOpener struct {
	mu    sync.Mutex
	opens int
}

func (o *recordingOpener) Open(any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(kind, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, kind+":"+msg)
}

type fixture struct {
	wf       *Workflow
	modal    *modal.Controller
	login    *recordingOpener
	notifier *recordingNotifier
	sessions *session.Store
}

func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store, err := session.Open(db, nil)
	if err != nil {
		t.Fatalf("session: %v", err)
	}

	screen := modal.NewScreen()
	ctrl := modal.New(modal.Options{Name: "booking", Document: screen})
	f := &fixture{
		modal:    ctrl,
		login:    &recordingOpener{},
		notifier: &recordingNotifier{},
		sessions: store,
	}
	f.wf = New(Options{
		Client:     api.NewClient(srv.URL),
		Sessions:   store,
		Directory:  fixedSelector{h: api.Hospital{ID: "7", Name: "Springfield General"}, ok: true},
		Modal:      ctrl,
		Login:      f.login,
		Notifier:   f.notifier,
		CloseDelay: 20 * time.Millisecond,
	})
	return f
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

var drA = api.Doctor{ID: "3", Name: "Dr. A", IsAvailable: true}

func TestEndToEndBooking(t *testing.T) {
	var calls atomic.Int32
	bodies := make(chan map[string]any, 1)
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/api/book" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		bodies <- body
		w.Write([]byte(`{"appointment_id":"101"}`))
	})
	f.sessions.Set(session.Session{UserID: "9", Username: "alice"})

	if err := f.wf.Open(drA); err != nil {
		t.Fatalf("open: %v", err)
	}
	st, err := f.wf.Confirm(context.Background(), "2024-01-01T10:00:00Z", "")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if st.State != Success || st.Message != "Booked — id: 101" || st.AppointmentID != "101" {
		t.Fatalf("unexpected status %+v", st)
	}
	if calls.Load() != 1 {
		t.Fatalf("want one request, got %d", calls.Load())
	}
	body := <-bodies
	want := map[string]any{"hospital_id": "7", "scheduled_at": "2024-01-01T10:00:00Z", "user_id": "9"}
	if len(body) != len(want) {
		t.Fatalf("unexpected body %v", body)
	}
	for k, v := range want {
		if body[k] != v {
			t.Fatalf("body[%s] = %v, want %v", k, body[k], v)
		}
	}

	if !f.modal.IsOpen() {
		t.Fatal("modal should stay open while the confirmation is shown")
	}
	waitFor(t, func() bool { return !f.modal.IsOpen() })
	if len(f.notifier.msgs) != 1 || f.notifier.msgs[0] != "success:"+MsgNotify {
		t.Fatalf("unexpected notifications %v", f.notifier.msgs)
	}
}

func TestNoSessionRequiresAuth(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })

	f.wf.Open(drA)
	st, err := f.wf.Confirm(context.Background(), "2024-01-01T10:00:00Z", "")
	if !api.IsAuthRequired(err) {
		t.Fatalf("expected AuthRequiredError, got %v", err)
	}
	if st.State != AuthRequired || st.Message != MsgSignIn {
		t.Fatalf("unexpected status %+v", st)
	}
	if calls.Load() != 0 {
		t.Fatal("no booking request may be issued without a session")
	}
	if f.login.opens != 1 {
		t.Fatalf("login modal should open once, got %d", f.login.opens)
	}
	if !f.modal.IsOpen() {
		t.Fatal("booking modal stays open")
	}
}

func TestEmptyDateFailsValidation(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })
	f.sessions.Set(session.Session{UserID: "9", Username: "alice"})

	f.wf.Open(drA)
	st, err := f.wf.Confirm(context.Background(), "  ", "")
	if !api.IsValidation(err) || st.State != Failed || st.Message != MsgChooseDate {
		t.Fatalf("unexpected result %+v %v", st, err)
	}
	if calls.Load() != 0 {
		t.Fatal("validation failure must not reach the server")
	}
}

func TestServerErrorShownVerbatim(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid scheduled_at format, use ISO format"}`))
	})
	f.sessions.Set(session.Session{UserID: "9", Username: "alice"})

	f.wf.Open(drA)
	st, err := f.wf.Confirm(context.Background(), "tomorrow", "")
	if !api.IsNetwork(err) {
		t.Fatalf("expected network error, got %v", err)
	}
	if st.State != Failed || st.Message != "invalid scheduled_at format, use ISO format" || st.ConfirmDisabled {
		t.Fatalf("unexpected status %+v", st)
	}
	time.Sleep(40 * time.Millisecond)
	if !f.modal.IsOpen() {
		t.Fatal("modal must stay open after a failure")
	}
}

func TestDuplicateConfirmWhileSubmitting(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`{"id":5}`))
	})
	f.sessions.Set(session.Session{UserID: "9", Username: "alice"})
	f.wf.Open(drA)

	done := make(chan error, 1)
	go func() {
		_, err := f.wf.Confirm(context.Background(), "2024-01-01T10:00:00Z", "first visit")
		done <- err
	}()
	waitFor(t, func() bool { return f.wf.Status().State == Submitting })
	if !f.wf.Status().ConfirmDisabled {
		t.Fatal("confirm should be disabled while submitting")
	}

	if _, err := f.wf.Confirm(context.Background(), "2024-01-01T10:00:00Z", ""); !errors.Is(err, ErrInFlight) {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if f.wf.Status().AppointmentID != "5" {
		t.Fatalf("unexpected status %+v", f.wf.Status())
	}
}

func TestOpenRequiresHospitalAndAvailableDoctor(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {})

	unavailable := drA
	unavailable.IsAvailable = false
	if err := f.wf.Open(unavailable); !api.IsValidation(err) {
		t.Fatalf("expected validation error for unavailable doctor, got %v", err)
	}

	f.wf.opts.Directory = fixedSelector{}
	if err := f.wf.Open(drA); !api.IsValidation(err) {
		t.Fatalf("expected validation error without hospital, got %v", err)
	}
	if f.modal.IsOpen() {
		t.Fatal("modal must not open on a rejected attempt")
	}
}
