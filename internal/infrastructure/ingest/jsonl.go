package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
)

// JSONLSource reads newline-delimited JSON raw events from a reader,
// typically the stdout of the platform scanner process piped into the
// tracker. Undecodable lines are forwarded as zero events so the adapter
// counts them with the rest of the malformed input.
type JSONLSource struct {
	r      io.Reader
	logger *slog.Logger
}

// NewJSONLSource wraps a reader.
func NewJSONLSource(r io.Reader, logger *slog.Logger) *JSONLSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONLSource{r: r, logger: logger}
}

// Events streams raw events until the reader is exhausted or the context is
// cancelled. The returned channel is closed when the stream ends.
func (s *JSONLSource) Events(ctx context.Context) <-chan RawEvent {
	ch := make(chan RawEvent)
	go func() {
		defer close(ch)

		scanner := bufio.NewScanner(s.r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			var ev RawEvent
			if err := json.Unmarshal([]byte(line), &ev); err != nil {
				s.logger.Debug("undecodable scan line", "error", err)
				ev = RawEvent{}
			}

			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			s.logger.Error("scan stream failed", "error", err)
		}
	}()
	return ch
}
