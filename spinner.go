package main

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Spinner animates a status line on w while a command loads a model or
// downloads assets. Final messages include the elapsed time.
type Spinner struct {
	w        io.Writer
	message  string
	frames   []string
	interval time.Duration
	started  time.Time
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
	mu       sync.Mutex
	theme    *Theme
}

// NewSpinner creates a spinner writing to w
func NewSpinner(w io.Writer, message string, theme *Theme) *Spinner {
	return &Spinner{
		w:        w,
		message:  message,
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		interval: 80 * time.Millisecond,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		theme:    theme,
	}
}

// Start begins the animation
func (s *Spinner) Start() {
	s.started = time.Now()
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for i := 0; ; i = (i + 1) % len(s.frames) {
			s.mu.Lock()
			_, _ = fmt.Fprintf(s.w, "\r\033[K%s %s", s.theme.Info(s.frames[i]), s.message)
			s.mu.Unlock()

			select {
			case <-s.stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Update changes the message; usable as a download progress callback
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Success stops the spinner and shows a success message
func (s *Spinner) Success(message string) {
	s.halt()
	_, _ = fmt.Fprintf(s.w, "\r\033[K%s %s %s\n", s.theme.Success("✓"), message, s.theme.Dim(s.elapsed()))
}

// Fail stops the spinner and shows a failure message
func (s *Spinner) Fail(message string) {
	s.halt()
	_, _ = fmt.Fprintf(s.w, "\r\033[K%s %s\n", s.theme.Error("✗"), message)
}

// Stop stops the spinner without a final message
func (s *Spinner) Stop() {
	s.halt()
	_, _ = fmt.Fprint(s.w, "\r\033[K")
}

func (s *Spinner) halt() {
	s.once.Do(func() {
		close(s.stop)
		if !s.started.IsZero() {
			<-s.done
		}
	})
}

func (s *Spinner) elapsed() string {
	if s.started.IsZero() {
		return ""
	}
	return "(" + time.Since(s.started).Round(time.Millisecond).String() + ")"
}
