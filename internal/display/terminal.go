package display

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nettop/internal/model"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
)

var columnWidths = []int{36, 36, 7, 9, 9, 9, 9}

// Terminal draws the latest report as a full-screen table. The terminal is put into raw mode by
// NewTerminal and restored by Close.
type Terminal struct {
	mu     sync.Mutex
	table  *widgets.Table
	status *widgets.Paragraph
	help   *widgets.Paragraph
	closer sync.Once
}

// NewTerminal takes over the terminal and shows the startup screen until the first report.
func NewTerminal(iface string, interval time.Duration) (*Terminal, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to init termui: %w", err)
	}

	t := &Terminal{
		table:  widgets.NewTable(),
		status: widgets.NewParagraph(),
		help:   widgets.NewParagraph(),
	}

	t.table.Title = fmt.Sprintf(" Top talkers on %s ", iface)
	t.table.Rows = [][]string{columns}
	t.table.ColumnWidths = columnWidths
	t.table.TextStyle = ui.NewStyle(ui.ColorWhite)
	t.table.RowStyles[0] = ui.NewStyle(ui.ColorCyan, ui.ColorClear, ui.ModifierBold)
	t.table.RowSeparator = false
	t.table.BorderStyle.Fg = ui.ColorGreen

	t.status.Border = false
	t.status.Text = fmt.Sprintf("Collecting traffic on %s, first report in %s...", iface, interval)
	t.status.TextStyle = ui.NewStyle(ui.ColorYellow)

	t.help.Border = false
	t.help.Text = "[q] quit"
	t.help.TextStyle = ui.NewStyle(ui.ColorYellow)

	w, h := ui.TerminalDimensions()
	t.mu.Lock()
	t.layout(w, h)
	t.render()
	t.mu.Unlock()
	return t, nil
}

func (t *Terminal) Name() string { return "terminal" }

// Write replaces the table contents with the report's rows.
func (t *Terminal) Write(r *model.Report) error {
	rows := make([][]string, 0, len(r.Rows)+1)
	rows = append(rows, columns)
	for _, row := range r.Rows {
		rows = append(rows, Cells(row))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.table.Rows = rows
	t.status.Text = fmt.Sprintf("%s  window %d  flows %d  sort %s",
		r.Timestamp.Format("15:04:05"), r.Sequence, r.TotalFlows, r.Mode)
	ui.Clear()
	t.render()
	return nil
}

// Run handles keyboard and resize events. It returns when the user presses q or Ctrl-C, or
// when ctx is done.
func (t *Terminal) Run(ctx context.Context) {
	events := ui.PollEvents()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			switch e.ID {
			case "q", "Q", "<C-c>":
				return
			case "<Resize>":
				d, ok := e.Payload.(ui.Resize)
				if !ok {
					continue
				}
				t.mu.Lock()
				t.layout(d.Width, d.Height)
				ui.Clear()
				t.render()
				t.mu.Unlock()
			}
		}
	}
}

// Close restores the terminal. It is safe to call more than once.
func (t *Terminal) Close() error {
	t.closer.Do(ui.Close)
	return nil
}

func (t *Terminal) layout(w, h int) {
	t.status.SetRect(0, 0, w, 1)
	t.table.SetRect(0, 1, w, h-1)
	t.help.SetRect(0, h-1, w, h)
}

func (t *Terminal) render() {
	ui.Render(t.status, t.table, t.help)
}
