package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/casualjim/streamgate/events"
	"github.com/fatih/color"
)

// transcript is what one call to printStream saw.
type transcript struct {
	StreamID string
	Model    string
	// Text is everything the assistant said, replayed text included.
	Text     string
	Terminal events.Event
}

// Interrupted reports whether the stream ended without a terminal event.
func (t *transcript) Interrupted() bool {
	return t.Terminal == nil
}

func printStream(ctx context.Context, w io.Writer, stream <-chan events.Event) (*transcript, error) {
	var text strings.Builder
	tr := &transcript{}
	faint := color.New(color.Faint)

	for {
		select {
		case <-ctx.Done():
			tr.Text = text.String()
			return tr, ctx.Err()
		case event, ok := <-stream:
			if !ok {
				tr.Text = text.String()
				if tr.Interrupted() && text.Len() > 0 {
					fmt.Fprintln(w)
				}
				return tr, nil
			}

			switch e := event.(type) {
			case events.StreamID:
				tr.StreamID = e.StreamID
				fmt.Fprint(w, color.MagentaString("Assistant")+": ")
			case events.Replay:
				faint.Fprint(w, e.Content)
				text.WriteString(e.Content)
			case events.Delta:
				fmt.Fprint(w, e.Content)
				text.WriteString(e.Content)
			case events.Done:
				tr.Model = e.Model
				tr.Terminal = e
				fmt.Fprintln(w)
			case events.Abort:
				tr.Terminal = e
				fmt.Fprintf(w, "\n%s\n", color.YellowString("[stopped: %s]", e.Reason))
			case events.Error:
				tr.Terminal = e
				fmt.Fprintf(w, "\n%s\n", color.RedString("Error: %s", e.Message))
			}
		}
	}
}
