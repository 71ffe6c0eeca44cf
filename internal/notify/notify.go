// Package notify shows short user-facing notices (toasts) after actions.
package notify

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Toast is one notice.
type Toast struct {
	Level   Level
	Message string
}

// Notifier receives toasts.
type Notifier interface {
	Notify(Toast)
}

func Success(n Notifier, msg string) { n.Notify(Toast{Level: LevelSuccess, Message: msg}) }
func Error(n Notifier, msg string)   { n.Notify(Toast{Level: LevelError, Message: msg}) }
func Info(n Notifier, msg string)    { n.Notify(Toast{Level: LevelInfo, Message: msg}) }

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

// Terminal prints toasts to a writer, one per line.
type Terminal struct {
	mu    sync.Mutex
	w     io.Writer
	quiet bool
}

// NewTerminal writes to w, or stderr when w is nil.
func NewTerminal(w io.Writer) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	return &Terminal{w: w}
}

// SetQuiet suppresses info and success toasts. Errors are always shown.
func (t *Terminal) SetQuiet(q bool) {
	t.mu.Lock()
	t.quiet = q
	t.mu.Unlock()
}

func (t *Terminal) Notify(toast Toast) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.quiet && toast.Level != LevelError {
		return
	}
	fmt.Fprintln(t.w, Render(toast))
}

// Render formats a toast with its level marker.
func Render(toast Toast) string {
	switch toast.Level {
	case LevelSuccess:
		return successStyle.Render("✓ " + toast.Message)
	case LevelError:
		return errorStyle.Render("✗ " + toast.Message)
	default:
		return infoStyle.Render("• " + toast.Message)
	}
}

// Recorder keeps toasts in memory.
type Recorder struct {
	mu     sync.Mutex
	toasts []Toast
}

func (r *Recorder) Notify(t Toast) {
	r.mu.Lock()
	r.toasts = append(r.toasts, t)
	r.mu.Unlock()
}

// Toasts returns a copy of everything recorded so far.
func (r *Recorder) Toasts() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Toast, len(r.toasts))
	copy(out, r.toasts)
	return out
}

// Last returns the most recent toast.
func (r *Recorder) Last() (Toast, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.toasts) == 0 {
		return Toast{}, false
	}
	return r.toasts[len(r.toasts)-1], true
}

// Discard drops every toast.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(Toast) {}
