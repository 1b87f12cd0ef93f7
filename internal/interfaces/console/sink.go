package console

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"brotherowl/internal/application/port"
)

type Sink struct {
	mu  sync.Mutex
	out io.Writer
}

func NewSink() port.Sink { return &Sink{out: os.Stdout} }

func NewSinkTo(w io.Writer) *Sink { return &Sink{out: w} }

func (s *Sink) WriteLive(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprint(s.out, line) // no newline
	return err
}

// Snapshot lines break out of the live line and leave an empty line below,
// the next live render fills it.
func (s *Sink) WriteSnapshot(ts time.Time, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.out, "\n%s %s\n\n", ts.Format("2006-01-02 15:04:05"), line)
	return err
}

func (s *Sink) NewLine() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprint(s.out, "\n")
	return err
}
