package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pep299/edgewriter/internal/assistant"
	"github.com/pep299/edgewriter/internal/prompt"
)

var generateCmd = &cobra.Command{
	Use:   "generate [text]",
	Short: "Run one editing task on text from the arguments or stdin",
	Long: `Run one editing task. Text is read from the arguments, or from stdin
when none are given. Ctrl-C stops the generation and keeps the partial output.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringP("task", "t", string(prompt.Rewrite), "Summarize, Proofread, Paraphrase or Rewrite")
	generateCmd.Flags().String("tone", string(prompt.Neutral), "rewrite tone: Neutral, Professional, Friendly, Concise, Academic or Custom")
	generateCmd.Flags().String("custom-tone", "", "style description used with --tone Custom")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	taskName, _ := cmd.Flags().GetString("task")
	toneName, _ := cmd.Flags().GetString("tone")
	customTone, _ := cmd.Flags().GetString("custom-tone")

	task, err := prompt.ParseTask(taskName)
	if err != nil {
		return err
	}
	text, err := readText(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, cleanup, err := newAssistant(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	release := onInterrupt(func() { a.Stop() })
	defer release()

	req := prompt.Request{Task: task, Tone: prompt.ParseTone(toneName), CustomTone: customTone, Text: text}
	out := cmd.OutOrStdout()
	asJSON := viper.GetBool("json")

	var outcome *assistant.Outcome
	if viper.GetBool("local") {
		outcome, err = a.Edit(ctx, req, func(partial string) {
			if !asJSON {
				fmt.Fprint(out, partial)
			}
		})
		if err == nil && !asJSON {
			fmt.Fprintln(out)
		}
	} else {
		outcome, err = a.EditRemote(ctx, req)
		if err == nil && !asJSON {
			fmt.Fprintln(out, outcome.Text)
		}
	}
	if err != nil {
		return err
	}

	if asJSON {
		return printJSON(out, outcome)
	}
	printSummary(cmd.ErrOrStderr(), outcome)
	return nil
}

func printSummary(w io.Writer, o *assistant.Outcome) {
	fmt.Fprintf(w, "\nClarity: %d%% | Conciseness: %d%% | Improvement: %d%%\n",
		o.Metrics.Clarity, o.Metrics.Conciseness, o.Metrics.Improvement)
	switch {
	case o.Cached:
		fmt.Fprintf(w, "Engine: %s | cached\n", o.Engine)
	case o.Stopped:
		fmt.Fprintf(w, "Engine: %s | stopped after %.2fs\n", o.Engine, o.Latency.Seconds())
	default:
		fmt.Fprintf(w, "Engine: %s | Latency: %.2fs | Energy: %s\n", o.Engine, o.Latency.Seconds(), o.Energy)
	}
}
