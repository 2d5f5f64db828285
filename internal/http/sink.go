package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/tidwall/sjson"

	"github.com/davidbz/hearth/internal/domain"
)

const doneRecord = "data: [DONE]\n\n"

var errStreamingUnsupported = errors.New("streaming not supported")

// sseSink writes normalized events as server-sent events. Headers are sent
// with the first record so a request rejected before streaming can still get
// a plain error response.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newSSESink(w http.ResponseWriter) (*sseSink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}
	return &sseSink{w: w, flusher: flusher}, nil
}

// Send forwards the provider payload; text-bearing events get their display
// fragment merged into "content".
func (s *sseSink) Send(_ context.Context, event *domain.NormalizedEvent) error {
	payload := event.Raw
	if event.Kind.TextBearing() && event.Text != "" {
		merged, err := sjson.SetBytes(payload, "content", event.Text)
		if err != nil {
			return fmt.Errorf("failed to merge content: %w", err)
		}
		payload = merged
	}
	return s.writeData(payload)
}

// SendStatistics writes the final statistics record.
func (s *sseSink) SendStatistics(_ context.Context, stats *domain.Statistics) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode statistics: %w", err)
	}
	return s.writeData(payload)
}

// Close writes the stream terminator.
func (s *sseSink) Close(_ context.Context) error {
	s.start()
	if _, err := fmt.Fprint(s.w, doneRecord); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) writeData(payload []byte) error {
	s.start()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) start() {
	if s.started {
		return
	}
	s.started = true

	header := s.w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}
