package mcpservice

import (
	"context"
	"errors"
	"testing"
)

type recordingReporter struct {
	calls []float64
	msg   string
}

func (r *recordingReporter) Report(ctx context.Context, progress, total float64, message string) error {
	r.calls = append(r.calls, progress, total)
	r.msg = message
	return nil
}

func TestToolResponseWriter(t *testing.T) {
	t.Parallel()
	rep := &recordingReporter{}
	ctx := WithProgressReporter(context.Background(), rep)
	w := newToolResponseWriter(ctx)

	if err := w.AppendText("a"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.AppendText(""); err != nil {
		t.Fatalf("append empty: %v", err)
	}
	if err := w.SendProgress(1, 2, "half"); err != nil {
		t.Fatalf("progress: %v", err)
	}
	w.SetError(true)

	res := w.Result()
	if len(res.Content) != 1 || res.Content[0].Text != "a" || !res.IsError {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(rep.calls) != 2 || rep.calls[0] != 1 || rep.calls[1] != 2 || rep.msg != "half" {
		t.Fatalf("unexpected progress: %+v", rep)
	}
	if err := w.AppendText("b"); !errors.Is(err, ErrFinalized) {
		t.Fatalf("expected ErrFinalized, got %v", err)
	}
}

func TestToolResponseWriter_ProgressWithoutReporter(t *testing.T) {
	t.Parallel()
	w := newToolResponseWriter(context.Background())
	if err := w.SendProgress(1, 0, ""); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}
