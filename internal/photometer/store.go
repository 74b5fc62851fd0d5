package photometer

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// DefaultLogPath returns the original controller's file name for a run started at t.
func DefaultLogPath(t time.Time) string {
	return t.Local().Format(TimestampLayout) + "_output.csv"
}

// Store appends record lines to the log file and echoes them to the console.
// A failed append is a StorageError: it is reported once, later failures are
// silent, and acquisition continues with console-only output.
type Store struct {
	path    string
	console io.Writer
	logger  *log.Logger

	writable bool
	warned   bool
	lines    int
}

// NewStore creates a Store. A nil console or logger discards echo and uses the standard logger.
func NewStore(path string, console io.Writer, logger *log.Logger) *Store {
	if console == nil {
		console = io.Discard
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Store{path: path, console: console, logger: logger, writable: true}
}

// Path returns the log file path.
func (s *Store) Path() string { return s.path }

// Writable reports whether the last append succeeded.
func (s *Store) Writable() bool { return s.writable }

// Lines returns the number of lines appended to the file.
func (s *Store) Lines() int { return s.lines }

// Record formats rec and appends it. It never fails: storage errors are handled here.
func (s *Store) Record(rec Record) error {
	s.Append(FormatRecord(rec))
	return nil
}

// Append echoes line to the console and appends it to the log file.
func (s *Store) Append(line string) {
	fmt.Fprintln(s.console, line)

	if err := appendLine(s.path, line); err != nil {
		s.writable = false
		if !s.warned {
			s.warned = true
			s.logger.Printf("storage: %v (further storage warnings suppressed)", newError(ErrStorage, "append", s.path, err))
		}
		return
	}
	s.writable = true
	s.lines++
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(f, line+"\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// AppendErrorRecord appends a fault description to path. Failures are ignored.
func AppendErrorRecord(path string, t time.Time, fault error) {
	if path == "" || fault == nil {
		return
	}
	_ = appendLine(path, fmt.Sprintf("%s\t%v", t.Local().Format(TimestampLayout), fault))
}
