package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/emacshere/internal/app"
	"github.com/bryanchriswhite/emacshere/internal/config"
	"github.com/bryanchriswhite/emacshere/internal/logger"
	"github.com/bryanchriswhite/emacshere/internal/pathmap"
)

var (
	cfgFile string

	// cfg and configMgr are loaded before any command runs
	cfg       *config.Config
	configMgr *config.Manager

	// dial opens the display; tests swap in a fake server
	dial app.Dialer = app.DialX11

	rootCmd = &cobra.Command{
		Use:   "emacshere [path]",
		Short: "Open a file or directory in the running Emacs",
		Long: `emacshere opens a path in the Emacs frame you used most recently on this
display, by dropping it onto the frame the way a file manager would.

Without an argument the current directory is opened. When the command runs
in an SSH session the path is rewritten to where the local machine mounts
the remote host (see remote.template in the config file).`,
		Example: `  # Open the current directory
  emacshere

  # Open a file relative to the current directory
  emacshere src/main.go

  # Target a different application class
  emacshere --class gvim notes.txt`,
		Args:              cobra.ArbitraryArgs,
		PersistentPreRunE: loadConfig,
		RunE:              runOpen,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
)

// usageError marks an invalid invocation
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// usageArgs reports positional argument errors as usage errors
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/emacshere/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("display", "", "X display to use (default is $DISPLAY)")
	rootCmd.PersistentFlags().String("class", "", "WM_CLASS instance name of the target (default is emacs)")
	rootCmd.PersistentFlags().Uint32("max-version", 0, "highest XDND version to negotiate (default is 5)")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})
}

// bindings maps config keys to the persistent flags overriding them
var bindings = map[string]string{
	"log_level":    "log-level",
	"display":      "display",
	"target_class": "class",
	"max_version":  "max-version",
}

func loadConfig(cmd *cobra.Command, args []string) error {
	v := viper.New()
	for key, flag := range bindings {
		if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(flag)); err != nil {
			return err
		}
	}
	if f := cmd.Flags().Lookup("port"); f != nil {
		if err := v.BindPFlag("server_port", f); err != nil {
			return err
		}
	}

	var err error
	configMgr, err = config.NewManager(cfgFile, v)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err = configMgr.Get()
	if err != nil {
		return err
	}

	logger.Init(cfg.LogLevel, cfg.LogPretty)
	logger.WithComponent("cli").Debug().
		Str("config", configMgr.GetConfigPath()).
		Str("class", cfg.TargetClass).
		Msg("Configuration loaded")
	return nil
}

func newRunner() *app.Runner {
	return app.NewRunner(dial, app.Options{
		Display:    cfg.Display,
		Class:      cfg.TargetClass,
		MaxVersion: cfg.MaxVersion,
	})
}

func runOpen(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	path, err := pathmap.Resolve(args, cwd)
	if err != nil {
		return &usageError{err: err}
	}
	path, err = cfg.Mapping().Map(path)
	if err != nil {
		return err
	}

	_, sess, err := newRunner().Open(path, nil)
	if err != nil {
		return err
	}

	logger.WithComponent("cli").Info().
		Str("session", sess.ID.String()).
		Str("uri", sess.URI).
		Msg("Opened")
	return nil
}

// exitCode maps the outcome of a command to the process exit status
func exitCode(err error) int {
	var usage *usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &usage):
		return 2
	default:
		return 1
	}
}

// Execute runs the root command and exits with its status
func Execute() {
	err := rootCmd.Execute()
	code := exitCode(err)
	if err != nil {
		fmt.Fprintf(os.Stderr, "emacshere: %v\n", err)
		if code == 2 {
			fmt.Fprintf(os.Stderr, "Run '%s --help' for usage.\n", rootCmd.CommandPath())
		}
	}
	os.Exit(code)
}
