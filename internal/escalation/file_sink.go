// Package escalation records questions the assistant could not answer.
package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"supportbot/internal/domain"
	"supportbot/internal/logger"
)

const module = "escalation"

// FileSink appends escalations as JSON lines. Existing lines are never rewritten.
type FileSink struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
	log  logger.ILogger
}

func NewFileSink(path string, log logger.ILogger) *FileSink {
	return &FileSink{path: path, now: time.Now, log: log}
}

// Path returns the log file location.
func (s *FileSink) Path() string { return s.path }

// Save appends one record. A zero timestamp is stamped with the current time; all timestamps are stored in UTC.
func (s *FileSink) Save(ctx context.Context, e domain.Escalation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	e.Timestamp = e.Timestamp.UTC()

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal escalation: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create escalation dir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.log.Error(module, "Failed to open escalation log", map[string]interface{}{"path": s.path, "error": err.Error()})
		return fmt.Errorf("open escalation log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		s.log.Error(module, "Failed to append escalation", map[string]interface{}{"path": s.path, "error": err.Error()})
		return fmt.Errorf("append escalation: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close escalation log: %w", err)
	}
	s.log.Info(module, "Escalation saved", map[string]interface{}{"email": e.Email, "question": e.Question})
	return nil
}
