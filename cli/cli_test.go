package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"hospital-appointments/api"
	"hospital-appointments/directory"
)

type fakeAPI struct {
	mu       sync.Mutex
	requests []string
	bookings string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{bookings: `[{"id":42,"doctor":"Dr. A","hospital":"Springfield General","scheduled_at":"2024-01-01T10:00:00Z","status":"booked"}]`}
	srv := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	switch r.Method + " " + r.URL.Path {
	case "GET /api/hospitals":
		w.Write([]byte(`[{"id":7,"name":"Springfield General","locality":"Springfield","address":"1 Main St"}]`))
	case "GET /api/hospital/7/doctors":
		w.Write([]byte(`[{"id":3,"name":"Dr. A","specialty":"Cardiology","is_available":true}]`))
	case "POST /api/login":
		w.Write([]byte(`{"message":"ok","user_id":9,"username":"alice"}`))
	case "POST /api/logout":
		w.Write([]byte(`{"message":"logged out"}`))
	case "POST /api/book":
		w.Write([]byte(`{"appointment_id":"101","message":"booked"}`))
	case "GET /api/history/9":
		w.Write([]byte(f.bookings))
	case "POST /api/appointment/42/cancel":
		f.bookings = `[]`
		w.Write([]byte(`{"message":"cancelled"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	}
}

func (f *fakeAPI) count(req string) int {
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

// hospctl runs one command against srv with state kept in dir.
func hospctl(t *testing.T, srv *httptest.Server, dir, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", dir)
	t.Setenv("HOSPCTL_MODAL_SETTLE_BOOKING", "1ms")
	t.Setenv("HOSPCTL_MODAL_SETTLE_LOGIN", "1ms")
	t.Setenv("HOSPCTL_BOOKING_CLOSE_DELAY", "20ms")
	t.Setenv("HOSPCTL_LOGIN_CLOSE_DELAY", "20ms")

	var out bytes.Buffer
	root := NewRootCommand()
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--api", srv.URL, "--state", filepath.Join(dir, "state.db"), "--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoginThenBook(t *testing.T) {
	f, srv := newFakeAPI(t)
	dir := t.TempDir()

	out, err := hospctl(t, srv, dir, "secret\n", "login", "alice")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "Signed in — alice") {
		t.Fatalf("unexpected login output %q", out)
	}

	out, err = hospctl(t, srv, dir, "", "whoami")
	if err != nil || !strings.Contains(out, "/dashboard?user_id=9") {
		t.Fatalf("session should survive between runs: %q %v", out, err)
	}

	out, err = hospctl(t, srv, dir, "", "book", "--hospital", "7", "--doctor", "3",
		"--at", "2024-01-01T10:00:00Z", "--locality", "Springfield")
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if !strings.Contains(out, "Booked — id: 101") {
		t.Fatalf("unexpected book output %q", out)
	}
	if f.count("POST /api/book") != 1 {
		t.Fatal("expected exactly one booking request")
	}
}

func TestBookWithoutSessionIsRefused(t *testing.T) {
	f, srv := newFakeAPI(t)
	_, err := hospctl(t, srv, t.TempDir(), "", "book", "--hospital", "7", "--doctor", "3", "--at", "2024-01-01T10:00:00Z")
	if err == nil || err.Error() != "Please register or log in before booking." {
		t.Fatalf("expected the sign-in message, got %v", err)
	}
	if f.count("POST /api/book") != 0 {
		t.Fatal("no booking may be sent without a session")
	}
}

func TestCancelAsksFirst(t *testing.T) {
	f, srv := newFakeAPI(t)
	dir := t.TempDir()
	if _, err := hospctl(t, srv, dir, "secret\n", "login", "alice"); err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := hospctl(t, srv, dir, "n\n", "cancel", "42"); err != nil {
		t.Fatalf("declined cancel: %v", err)
	}
	if f.count("POST /api/appointment/42/cancel") != 0 {
		t.Fatal("declined confirmation must not send a cancel")
	}

	out, err := hospctl(t, srv, dir, "y\n", "cancel", "42")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if f.count("POST /api/appointment/42/cancel") != 1 || !strings.Contains(out, "No bookings found.") {
		t.Fatalf("unexpected cancel result %q", out)
	}
}

func TestThemeToggle(t *testing.T) {
	_, srv := newFakeAPI(t)
	dir := t.TempDir()
	t.Setenv("COLORFGBG", "")
	out, err := hospctl(t, srv, dir, "", "theme", "toggle")
	if err != nil || !strings.Contains(out, "Theme: dark") {
		t.Fatalf("toggle: %q %v", out, err)
	}
	out, err = hospctl(t, srv, dir, "", "theme")
	if err != nil || !strings.Contains(out, "Theme: dark") {
		t.Fatalf("theme should persist: %q %v", out, err)
	}
}

func TestShellBookingSignsInOnTheWay(t *testing.T) {
	f, srv := newFakeAPI(t)
	script := strings.Join([]string{
		"search Springfield",
		"select 7",
		"book 3",
		"2024-01-01T10:00:00Z", // date
		"",                     // note
		"",                     // confirm: not signed in yet
		"alice",                // username
		"secret",               // password
		"",                     // login
		"",                     // confirm again
		"exit",
	}, "\n") + "\n"

	out, err := hospctl(t, srv, t.TempDir(), script, "shell")
	if err != nil {
		t.Fatalf("shell: %v", err)
	}
	for _, want := range []string{
		"Springfield General",
		"Please register or log in before booking.",
		"Signed in — alice",
		"Booked — id: 101",
		"Goodbye!",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("shell output missing %q:\n%s", want, out)
		}
	}
	if f.count("POST /api/book") != 1 {
		t.Fatalf("expected one booking, got %d", f.count("POST /api/book"))
	}
}

func TestLiveTypeDebounces(t *testing.T) {
	f, srv := newFakeAPI(t)
	search := directory.New(api.NewClient(srv.URL), nil)
	box := directory.NewSearchBox(context.Background(), search, 200*time.Millisecond, nil)
	defer box.Close()

	var echo bytes.Buffer
	submit, err := liveType(bytes.NewReader([]byte("Sprx\x7fingfield\r")), box, &echo)
	if err != nil || !submit {
		t.Fatalf("live type: %v %v", submit, err)
	}
	if box.Text() != "Springfield" {
		t.Fatalf("unexpected text %q", box.Text())
	}
	if err := box.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if n := f.count("GET /api/hospitals"); n != 1 {
		t.Fatalf("fast typing plus submit should search once, got %d", n)
	}
}

func TestLiveTypeKeepsMultibyteRunes(t *testing.T) {
	_, srv := newFakeAPI(t)
	search := directory.New(api.NewClient(srv.URL), nil)
	box := directory.NewSearchBox(context.Background(), search, time.Hour, nil)
	defer box.Close()

	var echo bytes.Buffer
	// Two backspaces after "Zür" remove "ü" whole, then the rest is typed again.
	submit, err := liveType(bytes.NewReader([]byte("Zür\x7f\x7fürich\r")), box, &echo)
	if err != nil || !submit {
		t.Fatalf("live type: %v %v", submit, err)
	}
	if box.Text() != "Zürich" {
		t.Fatalf("unexpected text %q", box.Text())
	}
}

func TestReadPasswordKeepsSpaces(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"  pass word  \n", "  pass word  "},
		{"secret\r\n", "secret"},
		{"   \n", "   "},
	} {
		p := newPrompter(strings.NewReader(tc.in), io.Discard)
		got, err := p.readPassword("Password: ")
		if err != nil {
			t.Fatalf("read %q: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("read %q: got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruncateStringKeepsRunes(t *testing.T) {
	got := truncateString("Hôpital Universitaire de Genève", 12)
	if got != "Hôpital U..." || !utf8.ValidString(got) {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := truncateString("Zürich", 6); got != "Zürich" {
		t.Fatalf("short names stay whole, got %q", got)
	}
}
