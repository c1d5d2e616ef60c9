package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pep299/edgewriter/internal/assistant"
	"github.com/pep299/edgewriter/internal/chat"
	"github.com/pep299/edgewriter/internal/prompt"
	"github.com/pep299/edgewriter/internal/remote"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat. /clear resets the history, /exit quits, Ctrl-C stops a reply.",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

// replier produces one assistant reply for the conversation
type replier func(ctx context.Context, conv *chat.Conversation, message string, out io.Writer) error

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var reply replier
	var stop func()
	if viper.GetBool("local") {
		a, cleanup, err := newAssistant(ctx)
		if err != nil {
			return err
		}
		defer cleanup()
		reply = localReplier(a)
		stop = func() { a.Stop() }
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		r, cancelTurn := remoteReplier(remoteClient(cfg))
		reply, stop = r, cancelTurn
	}

	release := onInterrupt(stop)
	defer release()

	return chatLoop(ctx, cmd.InOrStdin(), out, chat.NewConversation(), reply)
}

func chatLoop(ctx context.Context, in io.Reader, out io.Writer, conv *chat.Conversation, reply replier) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/clear":
			conv.Clear()
			fmt.Fprintln(out, "History cleared.")
			continue
		}

		fmt.Fprint(out, "Model: ")
		err := reply(ctx, conv, line, out)
		fmt.Fprintln(out)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(out, "Error:", err)
		}
	}
}

func localReplier(a *assistant.Assistant) replier {
	return func(ctx context.Context, conv *chat.Conversation, message string, out io.Writer) error {
		outcome, err := a.Chat(ctx, conv, message, func(partial string) {
			fmt.Fprint(out, partial)
		})
		if err != nil {
			return err
		}
		if outcome.Stopped {
			fmt.Fprint(out, " [stopped]")
		}
		return nil
	}
}

// remoteReplier sends the whole history to the server. The returned func
// cancels the reply in flight.
func remoteReplier(client *remote.Client) (replier, func()) {
	var (
		mu     sync.Mutex
		cancel context.CancelFunc = func() {}
	)
	r := func(ctx context.Context, conv *chat.Conversation, message string, out io.Writer) error {
		turnCtx, turnCancel := context.WithCancel(ctx)
		defer turnCancel()
		mu.Lock()
		cancel = turnCancel
		mu.Unlock()

		msgs := append(conv.Messages(), prompt.Message{Role: chat.RoleUser, Content: message})
		resp, err := client.Chat(turnCtx, msgs)
		if err != nil {
			if errors.Is(turnCtx.Err(), context.Canceled) && ctx.Err() == nil {
				fmt.Fprint(out, "[stopped]")
				return nil
			}
			return err
		}
		fmt.Fprint(out, resp.Text)
		conv.Append(chat.RoleUser, message)
		if resp.Text != "" {
			conv.Append(chat.RoleAssistant, resp.Text)
		}
		return nil
	}
	return r, func() {
		mu.Lock()
		defer mu.Unlock()
		cancel()
	}
}
