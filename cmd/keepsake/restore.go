package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/semmidev/keepsake/internal/adapter/inspect"
	"github.com/semmidev/keepsake/internal/app"
	"github.com/semmidev/keepsake/internal/usecase"
)

func newVerifyCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <artifact>",
		Short: "Recompute an artifact's SHA-256 and compare it with its digest file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			application, err := flags.newApp(cfg, app.Options{})
			if err != nil {
				return err
			}
			defer application.Shutdown()

			digest, err := application.Verify(cmd.Context(), args[0])
			if err != nil {
				application.Logger().Errorf("Verification of %s failed: %v", args[0], err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  OK\n", digest)
			return nil
		},
	}
}

func newListCmd(flags *globalFlags) *cobra.Command {
	var passphraseFile string
	var dir string

	cmd := &cobra.Command{
		Use:   "list [artifact]",
		Short: "List backups in the destination, or the members of one backup",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			application, err := flags.newApp(cfg, app.Options{})
			if err != nil {
				return err
			}
			defer application.Shutdown()

			if len(args) == 0 {
				artifacts, err := application.Artifacts(dir)
				if err != nil {
					return err
				}
				return printArtifacts(cmd.OutOrStdout(), artifacts)
			}

			pass, err := decryptPassphrase(args[0], firstNonEmpty(passphraseFile, cfg.Backup.PassphraseFile))
			if err != nil {
				return err
			}
			if pass != nil {
				defer pass.Wipe()
			}
			members, err := application.Members(cmd.Context(), args[0], pass)
			if err != nil {
				return err
			}
			return printMembers(cmd.OutOrStdout(), members)
		},
	}

	cmd.Flags().StringVar(&passphraseFile, "passphrase-file", "", "Read the decryption passphrase from this file")
	cmd.Flags().StringVar(&dir, "dir", "", "Directory to list backups from (default: backup.dest_dir)")

	return cmd
}

func newRestoreCmd(flags *globalFlags) *cobra.Command {
	var items []string
	var target string
	var passphraseFile string

	cmd := &cobra.Command{
		Use:   "restore <artifact>",
		Short: "Restore all or part of a backup",
		Long: `Restore a backup into the target directory (default: the configured home).

The artifact is checked against its digest file first. Use --item to
restore only some paths, given relative to the home directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			application, err := flags.newApp(cfg, app.Options{})
			if err != nil {
				return err
			}
			defer application.Shutdown()

			pass, err := decryptPassphrase(args[0], firstNonEmpty(passphraseFile, cfg.Backup.PassphraseFile))
			if err != nil {
				return err
			}
			if pass != nil {
				defer pass.Wipe()
			}

			restored, err := application.Restore(cmd.Context(), args[0], target, items, pass)
			if err != nil {
				application.Logger().Errorf("Restore failed: %v", err)
				return err
			}
			if len(restored) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Restored all members")
				return nil
			}
			for _, name := range restored {
				fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", name)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&items, "item", nil, "Path to restore, relative to home (repeatable)")
	cmd.Flags().StringVar(&target, "target", "", "Directory to restore into (default: backup.home)")
	cmd.Flags().StringVar(&passphraseFile, "passphrase-file", "", "Read the decryption passphrase from this file")

	return cmd
}

func printArtifacts(w io.Writer, artifacts []usecase.ArtifactInfo) error {
	if len(artifacts) == 0 {
		fmt.Fprintln(w, "No backups found")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tCREATED\tENCRYPTED\tDIGEST")
	for _, a := range artifacts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.Name, humanize.IBytes(uint64(a.SizeBytes)), humanize.Time(a.ModTime), yesNo(a.Encrypted), yesNo(a.HasDigest))
	}
	return tw.Flush()
}

func printMembers(w io.Writer, members []inspect.Member) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	var total int64
	for _, m := range members {
		total += m.Size
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Mode, humanize.IBytes(uint64(m.Size)), m.Name)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d members, %s uncompressed\n", len(members), humanize.IBytes(uint64(total)))
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
