// Package output prints the tool's human readable messages.
//
// Every line is prefixed with the tool name. Confirmations go to the
// standard output and errors to the standard error. Color is used only
// when the output is a terminal and NO_COLOR is unset.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Prefix starts every printed line
const Prefix = "pkgsync"

// Printer writes prefixed messages. It is safe for concurrent use.
type Printer struct {
	mu     sync.Mutex
	out    *stream
	errOut *stream
}

// stream is one destination with its own color decision
type stream struct {
	w        io.Writer
	noColor  bool
	renderer *lipgloss.Renderer
	styles   Styles
}

func newStream(w io.Writer, noColor bool) (*stream, error) {
	r := lipgloss.NewRenderer(w)
	if noColor {
		r.SetColorProfile(termenv.Ascii)
	}
	styles, err := LoadStyles(defaultStyles, r)
	if err != nil {
		return nil, err
	}
	return &stream{w: w, noColor: noColor, renderer: r, styles: styles}, nil
}

// New creates a Printer writing confirmations to out and errors to errOut.
// Each stream is plain when its noColor flag is set.
func New(out, errOut io.Writer, outNoColor, errNoColor bool) (*Printer, error) {
	o, err := newStream(out, outNoColor)
	if err != nil {
		return nil, err
	}
	e, err := newStream(errOut, errNoColor)
	if err != nil {
		return nil, err
	}
	return &Printer{out: o, errOut: e}, nil
}

// NewDefault creates a Printer on the process's standard streams
func NewDefault() *Printer {
	p, err := New(os.Stdout, os.Stderr, DetectNoColor(os.Stdout), DetectNoColor(os.Stderr))
	if err != nil {
		// The embedded style sheet is part of the binary
		panic(err)
	}
	return p
}

// Discard returns a Printer that drops everything
func Discard() *Printer {
	p, _ := New(io.Discard, io.Discard, true, true)
	return p
}

// WriterNoColor reports whether output to w should stay plain. Only a
// terminal file gets color.
func WriterNoColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return true
	}
	return DetectNoColor(f)
}

// DetectNoColor reports whether output to f should stay plain
func DetectNoColor(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return true
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return true
	}
	return termenv.ColorProfile() == termenv.Ascii
}

// Event prints a confirmation message followed by its subject
func (p *Printer) Event(msg, subject string) {
	line := p.out.render("Message", msg)
	if subject != "" {
		line += " " + p.out.render("Subject", subject)
	}
	p.println(p.out, line)
}

// Error prints err on the error stream
func (p *Printer) Error(err error) {
	if err == nil {
		return
	}
	p.println(p.errOut, p.errOut.render("Error", err.Error()))
}

func (s *stream) render(style, text string) string {
	if s.noColor {
		return text
	}
	return s.styles.Get(style).Render(text)
}

func (p *Printer) println(s *stream, line string) {
	prefix := s.render("Prefix", Prefix+":")
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(s.w, prefix+" "+strings.TrimRight(line, "\n"))
}
