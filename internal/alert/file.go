package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

// FileSink appends alerts as JSON lines to a file, one line per alert.
type FileSink struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFileSink checks that path can be opened for append and returns a sink
// writing to it. A nil logger uses slog.Default.
func NewFileSink(path string, logger *slog.Logger) (*FileSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("alert file %s: %w", path, err)
	}
	return &FileSink{path: path, logger: logger}, nil
}

// Name returns the sink identifier.
func (s *FileSink) Name() string { return "file" }

// Send appends a as one JSON line. Nothing is written once ctx is done.
func (s *FileSink) Send(ctx context.Context, a types.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding alert for %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("alert file %s: %w", s.path, err)
	}
	f, err := openAppend(s.path)
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("closing alert file", "path", s.path, "error", err)
		}
	}()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing alert to %s: %w", s.path, err)
	}
	s.logger.Debug("alert written", "path", s.path, "run_id", a.RunID, "level", a.Level)
	return nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening alert file: %w", err)
	}
	return f, nil
}
