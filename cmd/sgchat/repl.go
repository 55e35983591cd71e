package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/casualjim/streamgate/client"
	"github.com/casualjim/streamgate/messages"
	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
)

const help = `commands:
  /resume   continue the last interrupted answer
  /status   show what the server stored for the last stream
  /watch    follow the last stream if it is still running
  /cancel   stop the last stream on the server
  exit      quit
Press Ctrl-C while an answer streams to drop the connection.`

type repl struct {
	client *client.Client
	model  string
	out    io.Writer
	glam   *glamour.TermRenderer

	history []messages.Message
	last    *transcript
}

func newREPL(c *client.Client, model string, out io.Writer) (*repl, error) {
	glam, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		return nil, err
	}
	return &repl{client: c, model: model, out: out, glam: glam}, nil
}

func (r *repl) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Split(bufio.ScanLines)
	fmt.Fprintln(r.out, color.HiBlackString(help))

	for {
		fmt.Fprintf(r.out, "%s: ", color.CyanString("User"))
		if !scanner.Scan() {
			fmt.Fprintln(r.out, "Exiting...")
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		var err error
		switch {
		case input == "":
			continue
		case strings.EqualFold(input, "exit"):
			return nil
		case input == "/resume":
			err = r.resume(ctx)
		case input == "/status":
			err = r.status(ctx)
		case input == "/watch":
			err = r.watch(ctx)
		case input == "/cancel":
			err = r.cancel(ctx)
		default:
			r.history = append(r.history, messages.User(input))
			err = r.stream(ctx, client.Request{Messages: r.history, Model: r.model})
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(r.out, color.RedString("Error: %v", err))
		}
	}
}

// stream runs one request until it ends or the user presses Ctrl-C.
func (r *repl) stream(ctx context.Context, req client.Request) error {
	streamCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	ch, err := r.client.Stream(streamCtx, req)
	if err != nil {
		return err
	}
	tr, err := printStream(streamCtx, r.out, ch)
	if tr.StreamID == "" {
		tr.StreamID = req.StreamID
	}
	r.last = tr
	if err != nil && ctx.Err() == nil {
		// Ctrl-C: the connection is gone, the server keeps what it produced
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, color.YellowString("[interrupted, type /resume to continue]"))
		return nil
	}
	if err != nil {
		return err
	}
	if tr.Interrupted() {
		fmt.Fprintln(r.out, color.YellowString("[connection lost, type /resume to continue]"))
		return nil
	}
	if tr.Model != "" {
		r.history = append(r.history, messages.Assistant(tr.Text))
	}
	return nil
}

func (r *repl) resume(ctx context.Context) error {
	if r.last == nil || r.last.StreamID == "" {
		return errors.New("nothing to resume")
	}
	if !r.last.Interrupted() {
		return errors.New("the last answer is complete")
	}
	return r.stream(ctx, client.Request{
		Messages:       r.history,
		Resume:         true,
		StreamID:       r.last.StreamID,
		PartialContent: r.last.Text,
	})
}

func (r *repl) status(ctx context.Context) error {
	if r.last == nil || r.last.StreamID == "" {
		return errors.New("no stream yet")
	}
	st, err := r.client.Status(ctx, r.last.StreamID)
	if err != nil {
		return err
	}
	state := "finished"
	if st.Active {
		state = "running"
	}
	fmt.Fprintf(r.out, "%s %s (%s, %s)\n", color.HiBlackString("stream"), st.StreamID, st.Model, state)
	rendered, err := r.glam.Render(st.Content)
	if err != nil {
		rendered = st.Content
	}
	fmt.Fprintln(r.out, rendered)
	return nil
}

func (r *repl) watch(ctx context.Context) error {
	if r.last == nil || r.last.StreamID == "" {
		return errors.New("no stream yet")
	}
	watchCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	ch, err := r.client.Watch(watchCtx, r.last.StreamID)
	if err != nil {
		return err
	}
	_, err = printStream(watchCtx, r.out, ch)
	if err != nil && ctx.Err() == nil {
		return nil
	}
	return err
}

func (r *repl) cancel(ctx context.Context) error {
	if r.last == nil || r.last.StreamID == "" {
		return errors.New("no stream yet")
	}
	return r.client.Cancel(ctx, r.last.StreamID)
}
