package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LogSink writes events to an io.Writer, one line per event, in either a
// human-readable text format or JSONL.
type LogSink struct {
	writer   io.Writer
	jsonMode bool
}

// NewLogSink returns a LogSink writing to writer (os.Stdout if nil) in
// jsonMode (JSONL) or text mode.
func NewLogSink(writer io.Writer, jsonMode bool) *LogSink {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogSink{writer: writer, jsonMode: jsonMode}
}

func (l *LogSink) Emit(e Event) {
	if l.jsonMode {
		data, err := json.Marshal(e)
		if err != nil {
			_, _ = fmt.Fprintf(l.writer, "{\"error\":\"marshal event: %v\"}\n", err)
			return
		}
		_, _ = fmt.Fprintf(l.writer, "%s\n", data)
		return
	}

	_, _ = fmt.Fprintf(l.writer, "[%s] run=%s node=%s", e.Kind, e.RunID, e.NodeID)
	if e.Message != "" {
		_, _ = fmt.Fprintf(l.writer, " msg=%q", e.Message)
	}
	if e.EventID != "" {
		_, _ = fmt.Fprintf(l.writer, " event=%s", e.EventID)
	}
	_, _ = fmt.Fprint(l.writer, "\n")
}

// Flush is a no-op: LogSink writes synchronously with no internal buffer.
func (l *LogSink) Flush(context.Context) error { return nil }
