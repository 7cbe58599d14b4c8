package clipboard

import (
	"errors"
	"io"
	"os"

	sysclip "github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"github.com/mattn/go-isatty"
)

// Writer is one way of putting text on the clipboard.
// Available is the capability check; Write is only attempted when it is true.
type Writer interface {
	Available() bool
	Write(text string) error
}

// ErrUnavailable is returned when a writer is asked to write without the capability.
var ErrUnavailable = errors.New("clipboard: writer unavailable")

// NativeWriter uses the system clipboard (pbcopy, xclip, xsel, wl-copy or the Windows API).
type NativeWriter struct{}

func NewNativeWriter() NativeWriter {
	return NativeWriter{}
}

func (NativeWriter) Available() bool {
	return !sysclip.Unsupported
}

func (w NativeWriter) Write(text string) error {
	if !w.Available() {
		return ErrUnavailable
	}
	return sysclip.WriteAll(text)
}

// TerminalWriter is the legacy fallback: it emits an OSC 52 sequence to the
// controlling terminal, which copies the payload into the user's clipboard.
// The write is synchronous.
type TerminalWriter struct {
	out io.Writer
	tty bool
	mux string
}

// NewTerminalWriter writes to f when f is a terminal.
func NewTerminalWriter(f *os.File) *TerminalWriter {
	tty := f != nil && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
	return &TerminalWriter{out: f, tty: tty, mux: detectMux()}
}

// NewTerminalWriterTo writes to out unconditionally.
func NewTerminalWriterTo(out io.Writer) *TerminalWriter {
	return &TerminalWriter{out: out, tty: out != nil}
}

func (w *TerminalWriter) Available() bool {
	return w.tty
}

func (w *TerminalWriter) Write(text string) error {
	if !w.tty {
		return ErrUnavailable
	}
	seq := osc52.New(text)
	switch w.mux {
	case "tmux":
		seq = seq.Tmux()
	case "screen":
		seq = seq.Screen()
	}
	_, err := seq.WriteTo(w.out)
	return err
}

func detectMux() string {
	switch {
	case os.Getenv("TMUX") != "":
		return "tmux"
	case os.Getenv("STY") != "":
		return "screen"
	}
	return ""
}

// Cue is a best-effort physical signal after a successful batch copy.
type Cue interface {
	Cue()
}

// BellCue rings the terminal bell.
type BellCue struct {
	Out io.Writer
}

func (b BellCue) Cue() {
	if b.Out == nil {
		return
	}
	_, _ = io.WriteString(b.Out, "\a")
}
