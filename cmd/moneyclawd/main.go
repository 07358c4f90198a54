// Command moneyclawd is the MoneyClaw runtime entrypoint. It wires config,
// logging, storage, the inference router, model discovery, replication,
// and the agent loop together and runs them for the lifetime of the
// process. The interactive setup wizard, model picker, and service
// installer are a separate external CLI (spec §1 "Out of scope"); this
// binary only knows --run, --status, and --version (spec §6).
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/moneyclaw/moneyclaw/internal/config"
	"github.com/moneyclaw/moneyclaw/internal/daemon"
	"github.com/moneyclaw/moneyclaw/internal/logger"
	"github.com/spf13/cobra"
)

// Exit codes per spec §6.
const (
	exitOK                = 0
	exitFatalConfig       = 1
	exitStoreOpenFailure  = 2
	exitWalletUnavailable = 3
)

var version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

// GetVersion returns the build version string, mirroring the teacher's
// own GetVersion accessor for its root command.
func GetVersion() string { return version }

// newRootCmd builds the cobra command tree and wires exitCode to the
// outcome of whichever branch RunE takes. Split out from run so tests can
// drive it directly (SetArgs/SetOut/Execute) without going through os.Exit.
func newRootCmd(exitCode *int) *cobra.Command {
	var (
		configPath  string
		logLevel    string
		showStatus  bool
		showVersion bool
	)

	rootCmd := &cobra.Command{
		Use:           "moneyclawd",
		Short:         "MoneyClaw autonomous agent runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $HOME/.automaton/automaton.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("run", false, "run the agent loop in the foreground (default action)")
	rootCmd.Flags().BoolVar(&showStatus, "status", false, "report runtime status and exit")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print the version and exit")

	rootCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if showVersion {
			fmt.Fprintln(cmd.OutOrStdout(), "moneyclawd version "+GetVersion())
			return nil
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "load config:", err)
			*exitCode = exitFatalConfig
			return nil
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "invalid config:", err)
			*exitCode = exitFatalConfig
			return nil
		}

		if showStatus {
			*exitCode = runStatus(cfg)
			return nil
		}

		*exitCode = runDaemon(cfg, configPath)
		return nil
	}

	return rootCmd
}

func run(args []string) int {
	exitCode := exitOK
	rootCmd := newRootCmd(&exitCode)
	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFatalConfig
	}
	return exitCode
}

func runStatus(cfg *config.Config) int {
	st, err := daemon.StatusFromStore(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "status:", err)
		return exitStoreOpenFailure
	}

	state := "stopped"
	if st.Running {
		state = "running"
	}
	fmt.Printf("Status: %s\n", state)
	fmt.Printf("Wallet: %s\n", st.WalletAddr)
	fmt.Printf("Tier: %s\n", st.Tier)
	fmt.Printf("Credits: %.4f\n", st.Credits)
	fmt.Printf("Active model: %s\n", st.ActiveModel)
	if st.Running {
		fmt.Printf("Uptime: %s\n", st.Uptime.Round(1e9))
	}
	if st.LastError != "" {
		fmt.Printf("Last error: %s\n", st.LastError)
	}
	return exitOK
}

func runDaemon(cfg *config.Config, configPath string) int {
	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		return exitFatalConfig
	}
	defer log.Close()

	loader := config.NewLoader(configPath)
	d, err := daemon.New(cfg, log, loader)
	if err != nil {
		if errors.Is(err, daemon.ErrWalletUnavailable) {
			log.Error().Err(err).Msg("no usable wallet identity; run the setup wizard before starting moneyclawd")
			return exitWalletUnavailable
		}
		log.Error().Err(err).Msg("failed to open store")
		return exitStoreOpenFailure
	}

	if err := d.Start(); err != nil {
		log.Error().Err(err).Msg("failed to start daemon")
		return exitStoreOpenFailure
	}

	d.Wait()
	return exitOK
}
