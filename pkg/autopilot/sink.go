package autopilot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cpunion/moltbot/pkg/types"
)

// Sink persists journal entries outside the in-memory ring.
type Sink interface {
	Write(types.LogEntry) error
	Close() error
}

// Rotator is a Sink that can start a new segment. The journal rotates it on
// every Reset, so each run lands in its own file.
type Rotator interface {
	Rotate() error
}

// RunFileConfig sizes a RunFileSink.
type RunFileConfig struct {
	Path string
	// MaxSizeMB rotates mid-run once the file grows past it. Default 10.
	MaxSizeMB int
	// Keep is how many earlier runs stay on disk. 0 keeps them all.
	Keep int
}

// RunFileSink writes entries as JSON lines to Path. Earlier runs are moved
// aside with a timestamp suffix and pruned beyond Keep.
type RunFileSink struct {
	mu     sync.Mutex
	out    *lumberjack.Logger
	closed bool
}

var errSinkClosed = errors.New("journal file closed")

// NewRunFileSink prepares the sink. The file is opened on first write.
func NewRunFileSink(cfg RunFileConfig) (*RunFileSink, error) {
	if cfg.Path == "" {
		return nil, errors.New("journal file path is empty")
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	return &RunFileSink{out: &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.Keep,
	}}, nil
}

func (s *RunFileSink) Write(e types.LogEntry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSinkClosed
	}
	if _, err := s.out.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

// Rotate moves the current file aside and starts an empty one. An empty or
// missing file is left as is.
func (s *RunFileSink) Rotate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSinkClosed
	}
	info, err := os.Stat(s.out.Filename)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.Size() == 0) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat journal file: %w", err)
	}
	return s.out.Rotate()
}

func (s *RunFileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.out.Close()
}
