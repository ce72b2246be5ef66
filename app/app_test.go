package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"hospital-appointments/booking"
	"hospital-appointments/config"
	"hospital-appointments/history"
	"hospital-appointments/modal"
	"hospital-appointments/session"
)

// fakeServer serves the Springfield fixture and records every request.
type fakeServer struct {
	mu       sync.Mutex
	requests []string
	booked   map[string]any
}

func (f *fakeServer) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.RequestURI())
	f.mu.Unlock()

	switch r.Method + " " + r.URL.Path {
	case "GET /api/hospitals":
		w.Write([]byte(`[{"id":"7","name":"Springfield General","locality":"Springfield"}]`))
	case "GET /api/hospital/7/doctors":
		w.Write([]byte(`[{"id":"3","name":"Dr. A","is_available":true}]`))
	case "POST /api/book":
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.booked = body
		f.mu.Unlock()
		w.Write([]byte(`{"appointment_id":"101"}`))
	case "POST /api/login":
		w.Write([]byte(`{"user_id":"9","username":"alice"}`))
	case "GET /api/history/9":
		w.Write([]byte(`[]`))
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	}
}

func (f *fakeServer) count(req string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r == req {
			n++
		}
	}
	return n
}

func testConfig(t *testing.T, baseURL, statePath string) *config.Config {
	t.Helper()
	return &config.Config{
		APIBaseURL:        baseURL,
		StatePath:         statePath,
		SearchDebounce:    10 * time.Millisecond,
		BookingCloseDelay: 20 * time.Millisecond,
		LoginCloseDelay:   20 * time.Millisecond,
		BookingSettle:     time.Millisecond,
		LoginSettle:       time.Millisecond,
		BreakerFailures:   5,
		BreakerCooldown:   time.Second,
		ThemeDefault:      "light",
	}
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(Options{Config: cfg, Confirmer: yes{}})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

type yes struct{}

func (yes) Confirm(string) bool { return true }

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

func TestRestoredSessionFetchesHistoryOnStart(t *testing.T) {
	f := &fakeServer{}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	defer srv.Close()
	cfg := testConfig(t, srv.URL, filepath.Join(t.TempDir(), "state.db"))

	first := newApp(t, cfg)
	if err := first.Sessions.Set(session.Session{UserID: "9", Username: "alice"}); err != nil {
		t.Fatalf("set session: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	before := f.count("GET /api/history/9")

	second := newApp(t, cfg)
	defer second.Close()
	if got := second.Header.State(); got.Label != "Dashboard" {
		t.Fatalf("header should show the restored user before any request, got %+v", got)
	}
	if v := second.History.View(); v.Placeholder != history.Loading || v.UserID != "9" {
		t.Fatalf("history should wait for the restored user, not ask to sign in: %+v", v)
	}
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if f.count("GET /api/history/9") != before+1 {
		t.Fatal("start should fetch the restored user's history once")
	}
	if v := second.History.View(); v.Placeholder != history.Empty || v.UserID != "9" {
		t.Fatalf("unexpected history view %+v", v)
	}
}

func TestSpringfieldBooking(t *testing.T) {
	f := &fakeServer{}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	defer srv.Close()
	a := newApp(t, testConfig(t, srv.URL, filepath.Join(t.TempDir(), "state.db")))
	defer a.Close()
	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Sign in through the login modal.
	a.Header.Activate()
	if !a.LoginModal.IsOpen() {
		t.Fatal("login modal should open from the header")
	}
	a.LoginForm.Username.SetValue("alice")
	a.LoginForm.Password.SetValue("secret")
	if _, err := a.SubmitLogin(ctx, false); err != nil {
		t.Fatalf("login: %v", err)
	}
	if f.count("GET /api/history/9") != 1 {
		t.Fatal("signing in should refresh history once")
	}
	waitFor(t, func() bool { return !a.LoginModal.IsOpen() })

	hospitals, err := a.Directory.SearchHospitals(ctx, "Springfield")
	if err != nil || len(hospitals) != 1 {
		t.Fatalf("search: %v %v", hospitals, err)
	}
	if f.count("GET /api/hospitals?locality=Springfield") != 1 {
		t.Fatal("expected the locality query")
	}
	if _, err := a.Directory.SelectHospital(ctx, hospitals[0]); err != nil {
		t.Fatalf("select: %v", err)
	}

	a.SearchField.Focus()
	if err := a.OpenBooking("3"); err != nil {
		t.Fatalf("open booking: %v", err)
	}
	waitFor(t, func() bool { return a.Screen.Active() == a.BookingForm.Date })
	a.BookingForm.Date.SetValue("2024-01-01T10:00:00Z")

	st, err := a.SubmitBooking(ctx)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if st.State != booking.Success || st.Message != "Booked — id: 101" {
		t.Fatalf("unexpected status %+v", st)
	}
	f.mu.Lock()
	body := f.booked
	f.mu.Unlock()
	if body["hospital_id"] != "7" || body["user_id"] != "9" || body["scheduled_at"] != "2024-01-01T10:00:00Z" {
		t.Fatalf("unexpected booking payload %v", body)
	}
	if _, sent := body["doctor_id"]; sent {
		t.Fatal("doctor id must not be sent")
	}

	waitFor(t, func() bool { return !a.BookingModal.IsOpen() })
	if a.Screen.Active() != a.SearchField {
		t.Fatal("focus should return to the search field")
	}
}

func TestBookingModalKeyboard(t *testing.T) {
	f := &fakeServer{}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	defer srv.Close()
	a := newApp(t, testConfig(t, srv.URL, filepath.Join(t.TempDir(), "state.db")))
	defer a.Close()
	ctx := context.Background()

	hospitals, _ := a.Directory.SearchHospitals(ctx, "Springfield")
	a.Directory.SelectHospital(ctx, hospitals[0])
	a.SearchField.Focus()
	if err := a.OpenBooking("3"); err != nil {
		t.Fatalf("open booking: %v", err)
	}
	waitFor(t, func() bool { return a.Screen.Active() == a.BookingForm.Date })

	a.Screen.Press(modal.Key{Name: modal.KeyTab, Shift: true})
	if a.Screen.Active() != a.BookingForm.Cancel {
		t.Fatalf("shift+tab on the first field should wrap to the last, got %v", a.Screen.Active().Name())
	}
	a.Screen.Press(modal.Key{Name: modal.KeyTab})
	if a.Screen.Active() != a.BookingForm.Date {
		t.Fatal("tab on the last field should wrap to the first")
	}

	// Confirm without a session is refused and hands over to the login modal.
	a.BookingForm.Date.SetValue("2024-01-01T10:00:00Z")
	if _, err := a.SubmitBooking(ctx); err == nil {
		t.Fatal("expected an auth-required error")
	}
	if f.count("POST /api/book") != 0 || !a.LoginModal.IsOpen() {
		t.Fatal("no booking may be sent without a session")
	}

	a.Screen.Press(modal.Key{Name: modal.KeyEscape})
	if a.LoginModal.IsOpen() {
		t.Fatal("escape should close the newest modal")
	}
}
