package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/semmidev/keepsake/internal/app"
	"github.com/semmidev/keepsake/internal/config"
	"github.com/semmidev/keepsake/internal/domain"
)

// Version information, set at build time via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

// Exit codes. Anything not listed exits with 1.
const (
	exitOK           = 0
	exitFailure      = 1
	exitConfig       = 2
	exitPrecondition = 3
	exitArchive      = 4
	exitIO           = 5
	exitEncryption   = 6
	exitInterrupted  = 130
)

type globalFlags struct {
	configPath string
	verbose    bool
	quiet      bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "keepsake: %v\n", err)
	}
	os.Exit(exitCode(err))
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "keepsake",
		Short: "Back up home-directory configuration",
		Long: `Keepsake discovers configuration files under a home directory,
packs them into a compressed archive, optionally encrypts it with gpg,
and writes a SHA-256 digest and restore notes next to it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to config file (default: "+defaultConfigPath+" when present)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log debug output to the console")
	rootCmd.PersistentFlags().BoolVarP(&flags.quiet, "quiet", "q", false, "Only log errors to the console")

	rootCmd.AddCommand(
		newVersionCmd(),
		newDiscoverCmd(flags),
		newSourcesCmd(flags),
		newBackupCmd(flags),
		newVerifyCmd(flags),
		newListCmd(flags),
		newRestoreCmd(flags),
		newPruneCmd(flags),
		newScheduleCmd(flags),
		newAuthCmd(flags),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "keepsake %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "  Commit:     %s\n", Commit)
			fmt.Fprintf(cmd.OutOrStdout(), "  Build Date: %s\n", BuildDate)
		},
	}
}

// loadConfig reads the config file. Without --config the default path is
// used only when it exists, otherwise defaults and KEEPSAKE_* env apply.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	path := f.configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}
	return config.Load(path)
}

func (f *globalFlags) newApp(cfg *config.Config, opts app.Options) (*app.App, error) {
	opts.Verbose = opts.Verbose || f.verbose
	opts.Quiet = opts.Quiet || f.quiet
	application, err := app.New(cfg, opts)
	if err != nil {
		return nil, domain.IOError("initialize app", err)
	}
	return application, nil
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, context.Canceled) {
		return exitInterrupted
	}
	switch domain.KindOf(err) {
	case domain.KindConfig:
		return exitConfig
	case domain.KindPrecondition:
		return exitPrecondition
	case domain.KindArchive:
		return exitArchive
	case domain.KindIO:
		return exitIO
	case domain.KindEncryption:
		return exitEncryption
	default:
		return exitFailure
	}
}
