package main

import (
	"context"
	"strings"
	"testing"

	"github.com/casualjim/streamgate/events"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(evs ...events.Event) <-chan events.Event {
	ch := make(chan events.Event, len(evs))
	for _, ev := range evs {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestPrintStream_Completed(t *testing.T) {
	color.NoColor = true
	var buf strings.Builder

	tr, err := printStream(context.Background(), &buf, feed(
		events.StreamID{StreamID: "s1", Resumed: true},
		events.Replay{StreamID: "s1", Content: "Once upon"},
		events.Delta{StreamID: "s1", Content: " a time."},
		events.Done{StreamID: "s1", Model: "gpt-4o"},
	))
	require.NoError(t, err)

	assert.Equal(t, "s1", tr.StreamID)
	assert.Equal(t, "gpt-4o", tr.Model)
	assert.Equal(t, "Once upon a time.", tr.Text)
	assert.False(t, tr.Interrupted())
	assert.Equal(t, "Assistant: Once upon a time.\n", buf.String())
}

func TestPrintStream_Interrupted(t *testing.T) {
	color.NoColor = true
	var buf strings.Builder

	tr, err := printStream(context.Background(), &buf, feed(
		events.StreamID{StreamID: "s1"},
		events.Delta{StreamID: "s1", Content: "Once"},
	))
	require.NoError(t, err)
	assert.True(t, tr.Interrupted())
	assert.Equal(t, "Once", tr.Text)
}

func TestPrintStream_Failures(t *testing.T) {
	color.NoColor = true

	var buf strings.Builder
	tr, err := printStream(context.Background(), &buf, feed(
		events.StreamID{StreamID: "s1"},
		events.Error{StreamID: "s1", Message: "upstream stream failed"},
	))
	require.NoError(t, err)
	assert.False(t, tr.Interrupted())
	assert.Contains(t, buf.String(), "Error: upstream stream failed")

	buf.Reset()
	_, err = printStream(context.Background(), &buf, feed(events.Abort{StreamID: "s1", Reason: "cancelled"}))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "[stopped: cancelled]")
}

func TestPrintStream_ContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := printStream(ctx, &strings.Builder{}, make(chan events.Event))
	assert.ErrorIs(t, err, context.Canceled)
}
