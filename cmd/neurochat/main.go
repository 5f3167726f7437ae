// Package main provides the neurochat CLI entry point.
// neurochat is a terminal chat client that talks to Gemini, a local llama.cpp server or Ollama
// through one conversation, with tools for managing saved chat threads.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"neurochat/internal/config"
	"neurochat/internal/logger"
	"neurochat/internal/shell"
	"neurochat/internal/storage"
	"neurochat/internal/toolserver"
	"neurochat/internal/version"
)

var (
	configFile string
	logLevel   string
	logFile    string
	testMode   bool
	plain      bool
	detailed   bool
	jsonOutput bool
)

// rootCmd starts the chat REPL when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "neurochat",
	Short: "Chat with Gemini, a local llama.cpp model or Ollama from the terminal",
	Long: `neurochat keeps one conversation across three kinds of text-generation backends.
Personas and backends can be switched mid-conversation without losing history, and the model can
list, read and delete your saved chat threads through tools.`,
	SilenceUsage: true,
	RunE:         runChat,
}

// toolServerCmd serves the thread tools over stdio for the chat process.
var toolServerCmd = &cobra.Command{
	Use:    "tool-server",
	Short:  "Serve thread tools as line-delimited JSON-RPC over stdin/stdout",
	Hidden: true,
	RunE:   runToolServer,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect saved chat threads",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved chat threads, newest first",
	RunE:  runSessionsList,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		if detailed {
			cmd.Println(version.GetDetailedVersion())
			return
		}
		cmd.Println(version.GetFormattedVersion())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default ~/.config/neurochat/config.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	flags.StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")
	flags.BoolVar(&testMode, "test-mode", false, "Run with deterministic ids and timestamps")
	flags.String("sessions-dir", "", "Directory holding saved chat threads")

	rootCmd.Flags().String("backend", "", "Backend to start with (gemini|local|ollama)")
	rootCmd.Flags().String("persona", "", "Persona to start with")
	rootCmd.Flags().String("language", "", "Language of fallback messages (en|es)")
	rootCmd.Flags().BoolVar(&plain, "plain", false, "Disable colors and markdown rendering")

	versionCmd.Flags().BoolVar(&detailed, "detailed", false, "Show build details")
	sessionsListCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the listing as JSON")

	sessionsCmd.AddCommand(sessionsListCmd)
	rootCmd.AddCommand(toolServerCmd, sessionsCmd, versionCmd)

	cobra.OnInitialize(initLogger)
}

func initLogger() {
	if err := logger.Configure(logLevel, logFile, testMode); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig merges defaults, files, environment and the flags the command defines.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	lookup := func(name string) *pflag.Flag { return cmd.Flags().Lookup(name) }
	return config.Load(configFile, map[string]*pflag.Flag{
		"sessions_dir": lookup("sessions-dir"),
		"backend":      lookup("backend"),
		"persona":      lookup("persona"),
		"language":     lookup("language"),
	})
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger.Info("Starting neurochat", "version", version.GetFormattedVersion(), "backend", cfg.Backend)

	// Piped output gets no escape sequences.
	plainOutput := plain || !term.IsTerminal(int(os.Stdout.Fd()))

	env, err := shell.InitializeServices(cfg, shell.Options{TestMode: testMode, Plain: plainOutput})
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if err := env.Close(); err != nil {
			logger.Warn("Shutdown incomplete", "error", err)
		}
	}()

	handler := shell.NewHandler(env)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          handler.Prompt(),
		InterruptPrompt: "^C",
		EOFPrompt:       "/exit",
	})
	if err != nil {
		return fmt.Errorf("failed to start line editor: %w", err)
	}
	defer rl.Close()

	out := rl.Stdout()
	fmt.Fprintln(out, version.GetFormattedVersion())
	fmt.Fprintln(out, "Type /help for commands or /exit to quit.")

	return handler.Run(rl, out)
}

func runToolServer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Debug("Tool server starting", "sessions_dir", cfg.SessionsDir)
	server := toolserver.NewServer(storage.NewThreadStore(cfg.SessionsDir))
	return server.Serve(ctx, os.Stdin, os.Stdout)
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return listSessions(storage.NewThreadStore(cfg.SessionsDir), jsonOutput, cmd.OutOrStdout())
}

func listSessions(store *storage.ThreadStore, asJSON bool, out io.Writer) error {
	threads, err := store.List()
	if err != nil {
		return err
	}

	if asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(threads)
	}

	if len(threads) == 0 {
		fmt.Fprintf(out, "No saved threads in %s\n", store.Dir())
		return nil
	}
	for _, thread := range threads {
		title := ""
		if loaded, err := store.Load(thread.Filename); err == nil {
			title = loaded.Metadata.Title
		}
		fmt.Fprintf(out, "%s  %-48s  %s\n", thread.UpdatedAt, thread.Filename, title)
	}
	return nil
}
