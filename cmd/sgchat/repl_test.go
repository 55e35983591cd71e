package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/casualjim/streamgate/client"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestREPL_ResumesAfterLostConnection(t *testing.T) {
	color.NoColor = true
	var (
		mu     sync.Mutex
		bodies []string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `{"streamId":"s1","model":"m","content":"Once upon a time.","active":false}`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		if !gjson.Get(string(body), "resume").Bool() {
			fmt.Fprint(w, "data: {\"type\":\"streamId\",\"streamId\":\"s1\"}\n\n")
			fmt.Fprint(w, "data: {\"type\":\"delta\",\"streamId\":\"s1\",\"content\":\"Once upon\"}\n\n")
			return
		}
		fmt.Fprint(w, "data: {\"type\":\"streamId\",\"streamId\":\"s1\",\"resumed\":true}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"resume\",\"streamId\":\"s1\",\"content\":\"Once upon\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"delta\",\"streamId\":\"s1\",\"content\":\" a time.\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"done\",\"streamId\":\"s1\",\"model\":\"m\"}\n\n")
	}))
	defer server.Close()

	c, err := client.New(server.URL)
	require.NoError(t, err)
	var out strings.Builder
	r, err := newREPL(c, "m", &out)
	require.NoError(t, err)

	err = r.Run(context.Background(), strings.NewReader("tell me a story\n/resume\n/resume\n/status\nexit\n"))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	assert.Equal(t, "m", gjson.Get(bodies[0], "model").String())
	assert.Equal(t, "s1", gjson.Get(bodies[1], "streamId").String())
	assert.Equal(t, "Once upon", gjson.Get(bodies[1], "partialContent").String())

	output := out.String()
	assert.Contains(t, output, "[connection lost, type /resume to continue]")
	assert.Contains(t, output, "Assistant: Once upon a time.\n")
	assert.Contains(t, output, "Error: the last answer is complete")
	assert.Contains(t, output, "stream s1 (m, finished)")

	require.Len(t, r.history, 2)
	assert.Equal(t, "Once upon a time.", r.history[1].Content)
}

func TestREPL_CommandsNeedAStream(t *testing.T) {
	color.NoColor = true
	c, err := client.New("http://127.0.0.1:1")
	require.NoError(t, err)
	var out strings.Builder
	r, err := newREPL(c, "", &out)
	require.NoError(t, err)

	require.NoError(t, r.Run(context.Background(), strings.NewReader("/resume\n/status\n/cancel\n")))
	assert.Contains(t, out.String(), "Error: nothing to resume")
	assert.Equal(t, 2, strings.Count(out.String(), "Error: no stream yet"))
	assert.Contains(t, out.String(), "Exiting...")
}
