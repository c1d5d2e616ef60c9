package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pep299/edgewriter/internal/handlers"
	"github.com/pep299/edgewriter/internal/probe"
	"github.com/pep299/edgewriter/internal/prompt"
	"github.com/pep299/edgewriter/internal/quality"
)

var scoreCmd = &cobra.Command{
	Use:   "score ORIGINAL_FILE REVISED_FILE",
	Short: "Score a revision against its original",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		original, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		revised, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}

		m := quality.Score(string(original), string(revised))
		if viper.GetBool("json") {
			return printJSON(cmd.OutOrStdout(), m)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Clarity: %d%% | Conciseness: %d%% | Improvement: %d%%\n",
			m.Clarity, m.Conciseness, m.Improvement)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the inference server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := remoteClient(cfg)
		resp, err := client.Health(cmd.Context())
		if err != nil {
			return err
		}
		if viper.GetBool("json") {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (model %s, engine %s)\n", client.BaseURL(), resp.Status, resp.Model, resp.Engine)
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Report GPU support and the delegate a model would run on",
	Long: `Report GPU support and the delegate a model would run on. Without
--local the inference server's hardware is reported instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if !viper.GetBool("local") {
			report, err := remoteClient(cfg).GPUInfo(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(out, report)
		}

		zl, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer zl.Sync()

		prober := probe.NewProber(zl)
		report := prober.Host(cmd.Context())
		decision := handlers.Decide(cmd.Context(), cfg, prober, zl)
		return printJSON(out, map[string]interface{}{
			"host":     report,
			"support":  probe.Evaluate(probe.AdapterFromReport(report)),
			"decision": decision,
		})
	},
}

var promptCmd = &cobra.Command{
	Use:   "prompt [text]",
	Short: "Print the prompt built for a task without running it",
	RunE: func(cmd *cobra.Command, args []string) error {
		taskName, _ := cmd.Flags().GetString("task")
		toneName, _ := cmd.Flags().GetString("tone")
		customTone, _ := cmd.Flags().GetString("custom-tone")
		server, _ := cmd.Flags().GetBool("server")

		task, err := prompt.ParseTask(taskName)
		if err != nil {
			return err
		}
		text, err := readText(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		req := prompt.Request{Task: task, Tone: prompt.ParseTone(toneName), CustomTone: customTone, Text: text}

		p := prompt.BuildRequest(req)
		if server {
			p = prompt.ServerPrompt(req)
		}
		fmt.Fprintln(cmd.OutOrStdout(), p)

		counts := prompt.Counts(text)
		tokens := prompt.EstimateTokens(p)
		fmt.Fprintf(cmd.ErrOrStderr(), "\n%d characters | %d words | ~%d tokens in text | ~%d/%d tokens in prompt\n",
			counts.Characters, counts.Words, counts.Tokens, tokens, prompt.DefaultBudget)
		if err := prompt.CheckBudget(tokens, prompt.DefaultBudget); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	promptCmd.Flags().StringP("task", "t", string(prompt.Rewrite), "Summarize, Proofread, Paraphrase or Rewrite")
	promptCmd.Flags().String("tone", string(prompt.Neutral), "rewrite tone")
	promptCmd.Flags().String("custom-tone", "", "style description used with --tone Custom")
	promptCmd.Flags().Bool("server", false, "print the inference server's chat-template prompt")
}
