package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pep299/edgewriter/internal/chat"
	"github.com/pep299/edgewriter/internal/remote"
)

func TestReadText(t *testing.T) {
	text, err := readText([]string{"hello", "world"}, strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)

	text, err = readText([]string{"-"}, strings.NewReader("from stdin"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", text)

	text, err = readText(nil, strings.NewReader("piped"))
	require.NoError(t, err)
	assert.Equal(t, "piped", text)
}

func TestChatLoop(t *testing.T) {
	conv := chat.NewConversation()
	var seen []string
	reply := func(_ context.Context, c *chat.Conversation, message string, out io.Writer) error {
		seen = append(seen, message)
		c.Append(chat.RoleUser, message)
		c.Append(chat.RoleAssistant, "ok")
		fmt.Fprint(out, "ok")
		return nil
	}

	var out bytes.Buffer
	in := strings.NewReader("first\n\n/clear\nsecond\n/exit\nnever\n")
	require.NoError(t, chatLoop(context.Background(), in, &out, conv, reply))

	assert.Equal(t, []string{"first", "second"}, seen)
	assert.Equal(t, 2, conv.Len(), "history is cleared before the second turn")
	assert.Contains(t, out.String(), "History cleared.")
}

func TestRemoteReplier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		fmt.Fprint(w, `{"text":"Hi!","latency":0.1,"tokens":{"prompt":3,"completion":1,"total":4},"html":"<p>Hi!</p>"}`)
	}))
	defer srv.Close()

	reply, stop := remoteReplier(remote.NewClient(srv.URL))
	stop() // no turn in flight

	conv := chat.NewConversation()
	var out bytes.Buffer
	require.NoError(t, reply(context.Background(), conv, "hello", &out))
	assert.Equal(t, "Hi!", out.String())

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, chat.RoleAssistant, msgs[1].Role)
}
