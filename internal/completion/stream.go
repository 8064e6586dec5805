package completion

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"supportbot/internal/logger"
)

const doneMarker = "[DONE]"

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error json.RawMessage `json:"error,omitempty"`
}

// Stream is a single-pass iterator over the text fragments of a streamed reply.
//
//	for s.Next() {
//		fmt.Print(s.Text())
//	}
//	if err := s.Err(); err != nil { ... }
//
// Malformed fragments are logged and skipped. While Next waits, the upstream
// must produce a line at least every idle interval or the stream ends with
// ErrUnavailable. Close abandons the reply and releases the connection; it is
// safe to call more than once.
type Stream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	body    io.ReadCloser
	scanner *bufio.Scanner
	log     logger.ILogger

	idle    time.Duration
	timer   *time.Timer
	stalled atomic.Bool

	text   string
	err    error
	done   bool
	once   sync.Once
	closed atomic.Bool
}

func newStream(ctx context.Context, cancel context.CancelFunc, body io.ReadCloser, idle time.Duration, log logger.ILogger) *Stream {
	s := &Stream{ctx: ctx, cancel: cancel, body: body, scanner: newScanner(body), log: log, idle: idle}
	if idle > 0 {
		s.timer = time.AfterFunc(idle, func() {
			s.stalled.Store(true)
			s.cancel()
		})
		s.timer.Stop()
	}
	return s
}

// Next advances to the next non-empty fragment.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	s.arm()
	for s.scanner.Scan() {
		s.arm()
		line := strings.TrimRight(s.scanner.Text(), "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == doneMarker {
			s.finish(nil)
			return false
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			s.log.Warn(module, "Skipping malformed stream fragment", map[string]interface{}{
				"fragment": payload,
				"error":    err.Error(),
			})
			continue
		}
		if len(chunk.Error) > 0 && string(chunk.Error) != "null" {
			s.finish(fmt.Errorf("%w: upstream stream error: %s", ErrRequestFailed, chunk.Error))
			return false
		}

		var b strings.Builder
		for _, c := range chunk.Choices {
			b.WriteString(c.Delta.Content)
		}
		if b.Len() == 0 {
			continue
		}
		s.text = b.String()
		s.disarm()
		return true
	}

	err := s.scanner.Err()
	switch {
	case s.closed.Load():
		err = nil
	case s.stalled.Load():
		s.log.Warn(module, "Stream stalled, abandoning reply", map[string]interface{}{"idle": s.idle.String()})
		err = fmt.Errorf("%w: no data from upstream for %s", ErrUnavailable, s.idle)
	case s.ctx.Err() != nil:
		err = s.ctx.Err()
	case err != nil:
		err = fmt.Errorf("%w: read stream: %v", ErrUnavailable, err)
	}
	s.finish(err)
	return false
}

// Text returns the fragment produced by the last successful Next.
func (s *Stream) Text() string { return s.text }

// Err reports why iteration stopped early, if it did.
func (s *Stream) Err() error { return s.err }

// Close stops consuming the upstream reply.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		s.disarm()
		s.closed.Store(true)
		s.cancel()
		err = s.body.Close()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// arm restarts the idle deadline; it only runs while Next is waiting on upstream.
func (s *Stream) arm() {
	if s.timer != nil {
		s.timer.Reset(s.idle)
	}
}

func (s *Stream) disarm() {
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (s *Stream) finish(err error) {
	s.done = true
	s.text = ""
	s.err = err
	_ = s.Close()
}
