package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/semmidev/keepsake/internal/app"
	"github.com/semmidev/keepsake/internal/config"
	"github.com/semmidev/keepsake/internal/domain"
)

func newPruneCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete backups older than backup.retention_days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Backup.RetentionDays <= 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Retention is disabled, nothing to prune")
				return nil
			}
			application, err := flags.newApp(cfg, app.Options{})
			if err != nil {
				return err
			}
			defer application.Shutdown()

			reports, err := application.Prune(cmd.Context())
			for _, r := range reports {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d expired, %d file(s) deleted", r.Target, len(r.Expired), r.Deleted)
				if r.Failed > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), ", %d failed", r.Failed)
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return err
		},
	}
}

func newScheduleCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run scheduled backups and pruning until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Backup.Schedule == "" && cfg.Backup.PruneSchedule == "" {
				return domain.ConfigError("schedule", errors.New("neither backup.schedule nor backup.prune_schedule is set"))
			}
			application, err := flags.newApp(cfg, app.Options{})
			if err != nil {
				return err
			}
			defer application.Shutdown()

			// The daemon stops on SIGINT/SIGTERM; that is a clean exit.
			return application.Schedule(cmd.Context())
		},
	}
}

func newAuthCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize upload targets",
	}
	cmd.AddCommand(newAuthGDriveCmd(flags))
	return cmd
}

func newAuthGDriveCmd(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "gdrive",
		Short: "Obtain and store an OAuth token for the Google Drive target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			target, err := gdriveTarget(cfg)
			if err != nil {
				return err
			}
			application, err := flags.newApp(cfg, app.Options{})
			if err != nil {
				return err
			}
			defer application.Shutdown()

			auth, err := app.NewDriveAuth(application.Logger(), target.ClientSecretFile, target.TokenFile)
			if err != nil {
				return err
			}
			if err := auth.Run(cmd.Context(), addr); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token saved to %s\n", target.TokenFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8085", "Address for the local OAuth callback server")

	return cmd
}

// gdriveTarget returns the first gdrive target, enabled or not, so a token
// can be fetched before the target is switched on.
func gdriveTarget(cfg *config.Config) (config.UploadTarget, error) {
	for _, target := range cfg.UploadTargets {
		if target.Type == "gdrive" && target.ClientSecretFile != "" && target.TokenFile != "" {
			return target, nil
		}
	}
	return config.UploadTarget{}, domain.ConfigError("gdrive auth", errors.New("no gdrive upload target with client_secret_file and token_file"))
}
