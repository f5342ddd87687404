package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/semmidev/keepsake/internal/adapter/archiver"
	"github.com/semmidev/keepsake/internal/adapter/cipher"
	"github.com/semmidev/keepsake/internal/adapter/inspect"
	"github.com/semmidev/keepsake/internal/adapter/shredder"
	"github.com/semmidev/keepsake/internal/adapter/storage"
	"github.com/semmidev/keepsake/internal/config"
	"github.com/semmidev/keepsake/internal/discovery"
	"github.com/semmidev/keepsake/internal/domain"
	"github.com/semmidev/keepsake/internal/infrastructure/logger"
	"github.com/semmidev/keepsake/internal/infrastructure/scheduler"
	"github.com/semmidev/keepsake/internal/integrity"
	"github.com/semmidev/keepsake/internal/policy"
	"github.com/semmidev/keepsake/internal/progress"
	"github.com/semmidev/keepsake/internal/usecase"
)

type Options struct {
	Verbose bool
	Quiet   bool
	// Progress receives one JSON record per progress event. Nil discards them.
	Progress io.Writer
}

type App struct {
	config   *config.Config
	logger   *logger.Logger
	logOpts  logger.Options
	runID    string
	progress io.Writer
	archiver *archiver.Tar
	cipher   *cipher.GPG
	shredder *shredder.Shred
	inspect  *inspect.Reader
	tools    *usecase.ToolCheck
}

// New sets up the run log and the tool adapters. Upload targets and the
// policy are only touched by the commands that need them.
func New(cfg *config.Config, opts Options) (*App, error) {
	runID := uuid.NewString()

	logOpts := logger.Options{
		Level:   cfg.App.LogLevel,
		Verbose: opts.Verbose || cfg.App.Verbose,
		Quiet:   opts.Quiet,
	}
	runOpts := logOpts
	runOpts.File = logger.RunLogPath(cfg.App.LogDir, runID)
	log, err := logger.New(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log.Debugf("Run %s logging to %s", runID, log.Path())

	return &App{
		config:   cfg,
		logger:   log,
		logOpts:  logOpts,
		runID:    runID,
		progress: opts.Progress,
		archiver: archiver.NewTar(cfg.Tools.Tar),
		cipher:   cipher.NewGPG(cfg.Tools.GPG),
		shredder: shredder.New(cfg.Tools.Shred, log),
		inspect:  inspect.New(),
		tools:    usecase.NewToolCheck(cfg.Tools),
	}, nil
}

func (a *App) Logger() domain.Logger {
	return a.logger
}

func (a *App) LogPath() string {
	return a.logger.Path()
}

func (a *App) Config() *config.Config {
	return a.config
}

func (a *App) discoverer() *discovery.Discoverer {
	return discovery.New(a.config.Backup.Home, discovery.WithLogger(a.logger))
}

func (a *App) loadPolicy() (*policy.Policy, error) {
	p, err := policy.Load(a.config.Backup.PolicyFile)
	if err != nil {
		return nil, err
	}
	for _, w := range p.Warnings {
		a.logger.Warnf("Policy %s: %s", p.Source, w)
	}
	return p, nil
}

func (a *App) Discover(ctx context.Context, includeSizes bool) ([]domain.Candidate, error) {
	return a.discoverer().Discover(ctx, includeSizes)
}

func (a *App) Sources(ctx context.Context, mode domain.BackupMode) (domain.SourceList, error) {
	p, err := a.loadPolicy()
	if err != nil {
		return domain.SourceList{}, err
	}
	engine := usecase.NewBackup(p, a.discoverer(), a.archiver, a.cipher, a.shredder, nil, a.logger)
	return engine.Resolve(ctx, mode, a.config.Backup.Home)
}

type BackupRequest struct {
	Mode       domain.BackupMode
	DestDir    string
	Encrypt    bool
	Passphrase domain.Passphrase
}

func (a *App) Backup(ctx context.Context, req BackupRequest) (*usecase.Result, error) {
	p, err := a.loadPolicy()
	if err != nil {
		return &usecase.Result{RunID: a.runID, State: usecase.StateFailed}, err
	}

	// Each run gets its own channel so phase ordering starts fresh.
	sink := progress.New(a.progress, a.logger)
	engine := usecase.NewBackup(p, a.discoverer(), a.archiver, a.cipher, a.shredder, sink, a.logger,
		usecase.WithToolCheck(a.tools),
		usecase.WithArchiveChecker(a.inspect),
		usecase.WithUploader(usecase.NewUploader(a.uploadTargets(ctx), a.logger)),
	)

	ec := usecase.NewEngineContext(req.Mode, a.config.Backup.Home, req.DestDir, a.config.Backup.NamePrefix, time.Now())
	ec.RunID = a.runID
	ec.Encrypt = req.Encrypt
	ec.Passphrase = req.Passphrase
	ec.MinFreeBytes = a.config.Backup.MinFreeBytes
	return engine.Execute(ctx, ec)
}

func (a *App) restore() *usecase.Restore {
	return usecase.NewRestore(a.archiver, a.cipher, a.shredder, a.inspect, a.logger)
}

func (a *App) Verify(ctx context.Context, artifact string) (string, error) {
	return a.restore().Verify(ctx, artifact)
}

func (a *App) Members(ctx context.Context, artifact string, pass *domain.Passphrase) ([]inspect.Member, error) {
	return a.restore().Members(ctx, artifact, pass)
}

func (a *App) Restore(ctx context.Context, artifact, target string, items []string, pass *domain.Passphrase) ([]string, error) {
	if target == "" {
		target = a.config.Backup.Home
	}
	return a.restore().Run(ctx, artifact, target, items, pass)
}

func (a *App) Artifacts(dir string) ([]usecase.ArtifactInfo, error) {
	if dir == "" {
		dir = a.config.Backup.DestDir
	}
	return usecase.ListArtifacts(dir, a.config.Backup.NamePrefix)
}

func (a *App) IsEncrypted(artifact string) bool {
	return usecase.IsEncrypted(artifact)
}

func (a *App) DigestPath(artifact string) string {
	return integrity.SidecarPath(artifact)
}

func (a *App) Prune(ctx context.Context) ([]usecase.PruneReport, error) {
	return a.cleanup(ctx).Execute(ctx)
}

func (a *App) cleanup(ctx context.Context) *usecase.Cleanup {
	targets := a.uploadTargets(ctx)
	if local, err := storage.NewLocal(a.config.Backup.DestDir); err != nil {
		a.logger.Errorf("Failed to open destination %s: %v", a.config.Backup.DestDir, err)
	} else {
		targets = append([]usecase.UploadTarget{{Name: "destination", Storage: local}}, targets...)
	}
	return usecase.NewCleanup(targets, a.config.Backup.NamePrefix, a.logger, a.config.Backup.RetentionDays)
}

func (a *App) uploadTargets(ctx context.Context) []usecase.UploadTarget {
	var targets []usecase.UploadTarget

	for _, targetCfg := range a.config.GetEnabledUploadTargets() {
		var stor domain.Storage
		var err error

		switch targetCfg.Type {
		case "local":
			stor, err = storage.NewLocal(targetCfg.Path)
			if err != nil {
				a.logger.Errorf("Failed to initialize local copy target: %v", err)
				continue
			}
			a.logger.Debugf("Local copy enabled (%s)", targetCfg.Path)

		case "gdrive":
			stor, err = storage.NewGDrive(ctx, &targetCfg)
			if err != nil {
				a.logger.Errorf("Failed to initialize Google Drive: %v", err)
				continue
			}
			a.logger.Debugf("Google Drive upload enabled")

		case "s3":
			stor, err = storage.NewS3(ctx, &targetCfg)
			if err != nil {
				a.logger.Errorf("Failed to initialize S3: %v", err)
				continue
			}
			a.logger.Debugf("AWS S3 upload enabled (bucket: %s)", targetCfg.Bucket)

		case "telegram":
			stor, err = storage.NewTelegram(&targetCfg)
			if err != nil {
				a.logger.Errorf("Failed to initialize Telegram: %v", err)
				continue
			}
			a.logger.Debugf("Telegram notifications enabled")

		default:
			a.logger.Warnf("Unknown upload target type: %s", targetCfg.Type)
			continue
		}

		targets = append(targets, usecase.UploadTarget{
			Name:    targetCfg.Type,
			Storage: stor,
		})
	}

	return targets
}

// Schedule runs backups and pruning on the configured cron specs until ctx
// is cancelled. Scheduled backups can only read the passphrase from a file.
func (a *App) Schedule(ctx context.Context) error {
	cfg := a.config.Backup
	sched := scheduler.New(a.logger)

	if cfg.Schedule != "" {
		req := BackupRequest{
			Mode:    a.config.Mode(),
			DestDir: cfg.DestDir,
			Encrypt: cfg.Encrypt || a.config.Mode().RequiresEncryption(),
		}
		if req.Encrypt {
			if cfg.PassphraseFile == "" {
				return domain.ConfigError("schedule backup", fmt.Errorf("scheduled encrypted backups need backup.passphrase_file"))
			}
			req.Passphrase = domain.Passphrase{File: cfg.PassphraseFile}
		}

		if err := sched.AddJob("backup", cfg.Schedule, func(ctx context.Context) error {
			_, err := a.scheduledBackup(ctx, req)
			return err
		}); err != nil {
			return domain.ConfigError("schedule backup", err)
		}
		a.logger.Infof("Scheduled %s backup: %s", req.Mode, cfg.Schedule)
	}

	if cfg.PruneSchedule != "" && cfg.RetentionDays > 0 {
		prune := func(ctx context.Context) error {
			_, err := a.Prune(ctx)
			return err
		}
		if err := sched.AddJob("prune", cfg.PruneSchedule, prune); err != nil {
			return domain.ConfigError("schedule prune", err)
		}
		a.logger.Infof("Scheduled pruning: %s (retention %d days)", cfg.PruneSchedule, cfg.RetentionDays)
	}

	sched.Start()
	for _, name := range []string{"backup", "prune"} {
		if next, ok := sched.Next(name); ok {
			a.logger.Infof("Next %s at %s", name, next.Format(time.RFC3339))
		}
	}

	<-ctx.Done()
	a.logger.Infof("Stopping scheduler...")
	sched.Stop()
	return nil
}

// scheduledBackup runs one backup under a fresh run id with its own log
// file. The daemon log only records where that run logged.
func (a *App) scheduledBackup(ctx context.Context, req BackupRequest) (*usecase.Result, error) {
	runID := uuid.NewString()
	opts := a.logOpts
	opts.File = logger.RunLogPath(a.config.App.LogDir, runID)
	log, err := logger.New(opts)
	if err != nil {
		return &usecase.Result{RunID: runID, State: usecase.StateFailed}, domain.IOError("open run log", err)
	}
	defer log.Close()
	a.logger.Infof("Scheduled backup %s logging to %s", runID, log.Path())

	run := *a
	run.logger = log
	run.runID = runID
	run.shredder = shredder.New(a.config.Tools.Shred, log)

	result, err := run.Backup(ctx, req)
	if err != nil {
		a.logger.Errorf("Scheduled backup %s failed: %v", runID, err)
	} else {
		a.logger.Infof("Scheduled backup %s finished", runID)
	}
	return result, err
}

func (a *App) Shutdown() {
	a.logger.Close()
}
