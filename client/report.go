package client

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/table"
)

type Result struct {
	Attempted     int
	Size          int
	BytesSent     int64
	BytesReceived int64
	Elapsed       time.Duration
	Loss          float64
	// ClosedEarly is set when the server closed the connection or a receive
	// failed before Count messages were sent.
	ClosedEarly bool
}

// Render writes the burst summary as a table.
func (r *Result) Render(w io.Writer) error {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Messages attempted", r.Attempted},
		{"Message size", fmt.Sprintf("%d bytes", r.Size)},
		{"Bytes sent", r.BytesSent},
		{"Bytes received", r.BytesReceived},
		{"Elapsed", fmt.Sprintf("%d ms", r.Elapsed.Milliseconds())},
		{"Loss", fmt.Sprintf("%.2f%%", r.Loss)},
	})
	if r.ClosedEarly {
		t.AppendFooter(table.Row{"Note", "connection closed early"})
	}

	_, err := fmt.Fprintln(w, t.Render())
	return err
}
