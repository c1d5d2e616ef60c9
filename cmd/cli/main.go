package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pep299/edgewriter/internal/assistant"
	"github.com/pep299/edgewriter/internal/config"
	"github.com/pep299/edgewriter/internal/engine"
	"github.com/pep299/edgewriter/internal/handlers"
	"github.com/pep299/edgewriter/internal/logger"
	"github.com/pep299/edgewriter/internal/probe"
	"github.com/pep299/edgewriter/internal/remote"
)

var rootCmd = &cobra.Command{
	Use:           "edgewriter",
	Short:         "Rewrite, summarize, proofread and paraphrase text with a local or remote model",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Ignore a missing .env
		_ = godotenv.Load()
		return nil
	},
}

func init() {
	viper.SetDefault("remote", "http://127.0.0.1:8000")

	rootCmd.PersistentFlags().String("remote", "", "inference server URL (default $REMOTE_URL or http://127.0.0.1:8000)")
	rootCmd.PersistentFlags().Bool("local", false, "run the model in-process instead of on the inference server")
	rootCmd.PersistentFlags().String("engine", "", `in-process engine: "local", "hosted" or "echo"`)
	rootCmd.PersistentFlags().String("log-level", "warn", "log level")
	rootCmd.PersistentFlags().Bool("json", false, "print results as JSON")

	for _, name := range []string{"remote", "local", "engine", "log-level", "json"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("edgewriter")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(generateCmd, chatCmd, scoreCmd, healthCmd, probeCmd, promptCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("engine"); v != "" {
		cfg.EngineKind = strings.ToLower(v)
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(logger.Options{Level: cfg.LogLevel, Format: "console", File: cfg.LogFile})
}

// remoteClient picks the server URL from --remote, $EDGEWRITER_REMOTE or
// the configuration
func remoteClient(cfg *config.Config) *remote.Client {
	url := viper.GetString("remote")
	if !rootCmd.PersistentFlags().Changed("remote") && os.Getenv("EDGEWRITER_REMOTE") == "" && cfg.RemoteURL != "" {
		url = cfg.RemoteURL
	}
	return remote.NewClient(url)
}

// newAssistant builds an assistant on the remote server, or on an
// in-process engine with --local
func newAssistant(ctx context.Context) (*assistant.Assistant, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	zl, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	if !viper.GetBool("local") {
		a := assistant.New(nil, assistant.WithRemote(remoteClient(cfg)), assistant.WithLogger(zl))
		return a, func() { zl.Sync() }, nil
	}

	decision := handlers.Decide(ctx, cfg, probe.NewProber(zl), zl)
	e, err := engine.Open(ctx, cfg, decision, zl)
	if err != nil {
		return nil, nil, &assistant.Error{Kind: assistant.KindInit, Op: "open engine", Err: err}
	}
	fmt.Fprintln(os.Stderr, probe.Status(decision, e.Delegate()))

	a := assistant.New(e, assistant.WithLogger(zl))
	cleanup := func() {
		if c, ok := e.(engine.Closer); ok {
			c.Close()
		}
		zl.Sync()
	}
	return a, cleanup, nil
}

// readText joins args, or reads stdin when there are none or the only one
// is "-"
func readText(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(b), nil
}

// onInterrupt calls stop on every SIGINT until the returned release func
// is called
func onInterrupt(stop func()) func() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sig:
				stop()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sig)
		close(done)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
