package directory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"hospital-appointments/debounce"
)

// DefaultDebounce is how long typing must pause before a search fires.
const DefaultDebounce = 600 * time.Millisecond

// SearchBox is the locality input: typing searches after a pause, Enter
// searches at once.
type SearchBox struct {
	search *Search
	deb    *debounce.Debouncer
	delay  time.Duration
	ctx    context.Context
	logger *zap.Logger

	mu   sync.Mutex
	text string
}

// NewSearchBox binds an input to s. ctx scopes the searches it starts.
func NewSearchBox(ctx context.Context, s *Search, delay time.Duration, logger *zap.Logger) *SearchBox {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchBox{search: s, deb: debounce.New(), delay: delay, ctx: ctx, logger: logger}
}

// Text returns the current input.
func (b *SearchBox) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Input records a keystroke. A blank field cancels the pending search.
func (b *SearchBox) Input(text string) {
	b.mu.Lock()
	b.text = text
	b.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		b.deb.Cancel()
		return
	}
	b.deb.Schedule(func() { b.run(text) }, b.delay)
}

// Submit skips the delay and searches the current text now.
func (b *SearchBox) Submit() error {
	b.deb.Cancel()
	return b.run(b.Text())
}

// Close cancels any pending search; nothing fires after it returns.
func (b *SearchBox) Close() {
	b.deb.Stop()
}

func (b *SearchBox) run(text string) error {
	_, err := b.search.SearchHospitals(b.ctx, text)
	if errors.Is(err, ErrSuperseded) {
		return nil
	}
	if err != nil {
		b.logger.Warn("hospital search failed", zap.String("locality", text), zap.Error(err))
	}
	return err
}
