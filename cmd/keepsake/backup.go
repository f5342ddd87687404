package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/semmidev/keepsake/internal/app"
	"github.com/semmidev/keepsake/internal/config"
	"github.com/semmidev/keepsake/internal/domain"
	"github.com/semmidev/keepsake/internal/infrastructure/passphrase"
	"github.com/semmidev/keepsake/internal/usecase"
)

type backupFlags struct {
	mode           string
	dest           string
	encrypt        bool
	passphraseFile string
	progressFD     int
	progressFile   string
}

func newBackupCmd(flags *globalFlags) *cobra.Command {
	bf := &backupFlags{progressFD: -1}

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Run a full backup",
		Long: `Run a full backup of the configured home directory.

Complete mode includes credentials and always requires --encrypt.
Progress events are written as JSON lines to --progress-fd or
--progress-file when given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			return runBackup(cmd, flags, cfg, bf)
		},
	}

	cmd.Flags().StringVar(&bf.mode, "mode", "", "Backup mode (secure or complete; default from config)")
	cmd.Flags().StringVar(&bf.dest, "dest", "", "Destination directory (default from config)")
	cmd.Flags().BoolVar(&bf.encrypt, "encrypt", false, "Encrypt the archive with gpg")
	cmd.Flags().StringVar(&bf.passphraseFile, "passphrase-file", "", "Read the encryption passphrase from this file")
	cmd.Flags().IntVar(&bf.progressFD, "progress-fd", -1, "Write progress events to this open file descriptor")
	cmd.Flags().StringVar(&bf.progressFile, "progress-file", "", "Append progress events to this file")
	cmd.MarkFlagsMutuallyExclusive("progress-fd", "progress-file")

	return cmd
}

func runBackup(cmd *cobra.Command, flags *globalFlags, cfg *config.Config, bf *backupFlags) error {
	mode := cfg.Mode()
	if bf.mode != "" {
		m, err := domain.ParseMode(bf.mode)
		if err != nil {
			return domain.ConfigError("--mode", err)
		}
		mode = m
	}

	dest := cfg.Backup.DestDir
	if bf.dest != "" {
		dest = bf.dest
	}
	dest, err := filepath.Abs(dest)
	if err != nil {
		return domain.ConfigError("--dest", err)
	}

	progressOut, closeProgress, err := openProgress(bf.progressFD, firstNonEmpty(bf.progressFile, cfg.Backup.ProgressFile))
	if err != nil {
		return err
	}
	defer closeProgress()

	application, err := flags.newApp(cfg, app.Options{Progress: progressOut})
	if err != nil {
		return err
	}
	defer application.Shutdown()
	log := application.Logger()

	req := app.BackupRequest{
		Mode:    mode,
		DestDir: dest,
		Encrypt: bf.encrypt || cfg.Backup.Encrypt,
	}
	if req.Encrypt {
		pass, err := backupPassphrase(firstNonEmpty(bf.passphraseFile, cfg.Backup.PassphraseFile), log)
		if err != nil {
			log.Errorf("Cannot obtain passphrase: %v", err)
			return err
		}
		defer pass.Wipe()
		req.Passphrase = pass
	}

	log.Infof("Starting %s backup of %s into %s", mode, cfg.Backup.Home, dest)
	result, err := application.Backup(cmd.Context(), req)
	if err != nil {
		for _, kept := range keptOf(result) {
			log.Warnf("Kept %s", kept)
		}
		log.Errorf("Backup failed, see %s", application.LogPath())
		return err
	}

	printResult(cmd.OutOrStdout(), result)
	return nil
}

// backupPassphrase reads the passphrase from file when one is configured and
// otherwise prompts twice on the terminal.
func backupPassphrase(file string, log domain.Logger) (domain.Passphrase, error) {
	if file != "" {
		return passphrase.FromFile(file)
	}

	prompter, err := passphrase.NewPrompter()
	if err != nil {
		return domain.Passphrase{}, err
	}
	defer prompter.Close()

	pass, err := prompter.Ask(true)
	if err != nil {
		return domain.Passphrase{}, err
	}
	if strength := passphrase.Evaluate(pass.Secret); strength.Weak() {
		log.Warnf("Weak passphrase (score %d/100)", strength.Score)
		for _, hint := range strength.Feedback {
			log.Warnf("  %s", hint)
		}
	}
	return pass, nil
}

// decryptPassphrase returns nil for plaintext artifacts.
func decryptPassphrase(artifact, file string) (*domain.Passphrase, error) {
	if !usecase.IsEncrypted(artifact) {
		return nil, nil
	}
	if file != "" {
		pass, err := passphrase.FromFile(file)
		if err != nil {
			return nil, err
		}
		return &pass, nil
	}

	prompter, err := passphrase.NewPrompter()
	if err != nil {
		return nil, err
	}
	defer prompter.Close()

	pass, err := prompter.Ask(false)
	if err != nil {
		return nil, err
	}
	return &pass, nil
}

// openProgress resolves where progress records go. The returned close func
// never closes stdout or stderr.
func openProgress(fd int, file string) (io.Writer, func(), error) {
	noop := func() {}
	switch {
	case fd >= 0:
		switch fd {
		case 1:
			return os.Stdout, noop, nil
		case 2:
			return os.Stderr, noop, nil
		}
		f := os.NewFile(uintptr(fd), "progress")
		if f == nil {
			return nil, noop, domain.ConfigError("--progress-fd", fmt.Errorf("invalid descriptor %d", fd))
		}
		if _, err := f.Stat(); err != nil {
			return nil, noop, domain.ConfigError("--progress-fd", err)
		}
		return f, func() { f.Close() }, nil
	case file != "":
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, noop, domain.IOError("open progress file", err)
		}
		return f, func() { f.Close() }, nil
	default:
		return nil, noop, nil
	}
}

func printResult(w io.Writer, result *usecase.Result) {
	art := result.Artifact
	fmt.Fprintf(w, "Backup complete (%s, %d entries)\n", art.Mode, result.Entries)
	fmt.Fprintf(w, "  Archive: %s (%s)\n", art.FinalPath(), humanize.IBytes(uint64(art.SizeBytes)))
	fmt.Fprintf(w, "  SHA-256: %s\n", art.Digest)
	if art.DigestPath != "" {
		fmt.Fprintf(w, "  Digest:  %s\n", art.DigestPath)
	}
	if art.NotesPath != "" {
		fmt.Fprintf(w, "  Notes:   %s\n", art.NotesPath)
	}
}

func keptOf(result *usecase.Result) []string {
	if result == nil {
		return nil
	}
	return result.Kept
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
