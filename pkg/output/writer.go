package output

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// Writer receives the event stream of a manifest run.
//
// Implementations are called from every scheduler job and must be safe for
// concurrent use. Each call produces one line.
type Writer interface {
	WritePartition(ctx context.Context, rec *PartitionRecord) error
	WriteError(ctx context.Context, err *ErrorRecord) error
	WriteProgress(ctx context.Context, prog *ProgressRecord) error
	WriteSummary(ctx context.Context, sum *SummaryRecord) error
	Close() error
}

// JSONLWriter encodes each event as a Record envelope on its own line.
type JSONLWriter struct {
	mu     sync.Mutex
	dst    io.Writer
	closed bool

	runID    string
	provider string
	now      func() time.Time
}

var _ Writer = (*JSONLWriter)(nil)

// NewJSONLWriter returns a writer that stamps every record with runID and
// provider. It does not own dst; Close leaves it open.
func NewJSONLWriter(dst io.Writer, runID, provider string) *JSONLWriter {
	return &JSONLWriter{
		dst:      dst,
		runID:    runID,
		provider: provider,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (jw *JSONLWriter) WritePartition(ctx context.Context, rec *PartitionRecord) error {
	return jw.emit(ctx, TypePartition, rec)
}

func (jw *JSONLWriter) WriteError(ctx context.Context, rec *ErrorRecord) error {
	return jw.emit(ctx, TypeError, rec)
}

func (jw *JSONLWriter) WriteProgress(ctx context.Context, rec *ProgressRecord) error {
	return jw.emit(ctx, TypeProgress, rec)
}

func (jw *JSONLWriter) WriteSummary(ctx context.Context, rec *SummaryRecord) error {
	return jw.emit(ctx, TypeSummary, rec)
}

// Close rejects further writes.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	jw.closed = true
	jw.mu.Unlock()
	return nil
}

func (jw *JSONLWriter) emit(ctx context.Context, recordType string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}
	line, err := json.Marshal(Record{
		Type:     recordType,
		TS:       jw.now(),
		RunID:    jw.runID,
		Provider: jw.provider,
		Data:     data,
	})
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}
	line = append(line, '\n')

	jw.mu.Lock()
	defer jw.mu.Unlock()
	if jw.closed {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeAll(jw.dst, line); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

// writeAll retries short writes so a line is never truncated.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		switch {
		case err != nil:
			return err
		case n == 0:
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// Open resolves an --events destination. Empty discards records, "-" is
// stdout, anything else is a file that is created or truncated. The returned
// func releases the destination.
func Open(dest, runID, provider string) (Writer, func() error, error) {
	if dest == "" {
		return NopWriter{}, func() error { return nil }, nil
	}
	if dest == "-" {
		jw := NewJSONLWriter(os.Stdout, runID, provider)
		return jw, jw.Close, nil
	}

	f, err := os.Create(dest)
	if err != nil {
		return nil, nil, &WriteError{Op: "open", Err: err}
	}
	jw := NewJSONLWriter(f, runID, provider)
	release := func() error {
		_ = jw.Close()
		return f.Close()
	}
	return jw, release, nil
}

// NopWriter discards every record.
type NopWriter struct{}

var _ Writer = NopWriter{}

func (NopWriter) WritePartition(context.Context, *PartitionRecord) error { return nil }
func (NopWriter) WriteError(context.Context, *ErrorRecord) error         { return nil }
func (NopWriter) WriteProgress(context.Context, *ProgressRecord) error   { return nil }
func (NopWriter) WriteSummary(context.Context, *SummaryRecord) error     { return nil }
func (NopWriter) Close() error                                           { return nil }
