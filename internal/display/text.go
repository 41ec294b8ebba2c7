package display

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"

	"nettop/internal/model"
)

// TextWriter prints each report as a fixed-width table. It serves the -plain mode and the
// offline analyzer.
type TextWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTextWriter creates a text writer on out.
func NewTextWriter(out io.Writer) *TextWriter {
	return &TextWriter{out: out}
}

func (w *TextWriter) Name() string { return "text" }

func (w *TextWriter) Write(r *model.Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	bw := bufio.NewWriter(w.out)
	fmt.Fprintf(bw, "# window %d  %s  interface=%s  flows=%d  sort=%s\n",
		r.Sequence, r.Timestamp.Format(time.RFC3339), r.Interface, r.TotalFlows, r.Mode)
	for _, line := range headerLines {
		fmt.Fprintln(bw, line)
	}
	for _, row := range r.Rows {
		fmt.Fprintln(bw, FormatRow(row))
	}
	fmt.Fprintln(bw)

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (w *TextWriter) Close() error { return nil }
