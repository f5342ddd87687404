package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/semmidev/keepsake/internal/domain"
)

type Config struct {
	App           AppConfig      `mapstructure:"app"`
	Backup        BackupConfig   `mapstructure:"backup"`
	Tools         ToolsConfig    `mapstructure:"tools"`
	UploadTargets []UploadTarget `mapstructure:"upload_targets"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogDir   string `mapstructure:"log_dir"`
	Verbose  bool   `mapstructure:"verbose"`
}

type BackupConfig struct {
	PolicyFile     string `mapstructure:"policy_file"`
	Home           string `mapstructure:"home"`
	DestDir        string `mapstructure:"dest_dir"`
	NamePrefix     string `mapstructure:"name_prefix"`
	Mode           string `mapstructure:"mode"`
	Encrypt        bool   `mapstructure:"encrypt"`
	PassphraseFile string `mapstructure:"passphrase_file"`
	MinFreeBytes   uint64 `mapstructure:"min_free_bytes"`
	RetentionDays  int    `mapstructure:"retention_days"`
	Schedule       string `mapstructure:"schedule"`
	PruneSchedule  string `mapstructure:"prune_schedule"`
	ProgressFile   string `mapstructure:"progress_file"`
}

type ToolsConfig struct {
	Tar   string `mapstructure:"tar"`
	GPG   string `mapstructure:"gpg"`
	Shred string `mapstructure:"shred"`
}

type UploadTarget struct {
	Type    string `mapstructure:"type"`
	Enabled bool   `mapstructure:"enabled"`

	// Local directory
	Path string `mapstructure:"path"`

	// Google Drive: a service account key, or an OAuth client plus the
	// token file written by "keepsake auth gdrive".
	CredentialsFile  string `mapstructure:"credentials_file"`
	ClientSecretFile string `mapstructure:"client_secret_file"`
	TokenFile        string `mapstructure:"token_file"`
	FolderID         string `mapstructure:"folder_id"`

	// AWS S3
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
	Endpoint  string `mapstructure:"endpoint"`

	// Telegram
	BotToken   string `mapstructure:"bot_token"`
	ChatID     string `mapstructure:"chat_id"`
	SendFile   bool   `mapstructure:"send_file"`
	NotifyOnly bool   `mapstructure:"notify_only"`
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("app.name", "keepsake")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_dir", filepath.Join(home, ".local", "state", "keepsake", "logs"))
	v.SetDefault("backup.policy_file", filepath.Join(home, ".config", "keepsake", "policy.yaml"))
	v.SetDefault("backup.home", home)
	v.SetDefault("backup.dest_dir", filepath.Join(home, "backups"))
	v.SetDefault("backup.name_prefix", "profile_backup")
	v.SetDefault("backup.mode", string(domain.ModeSecure))
	v.SetDefault("backup.min_free_bytes", 100*1024*1024)
	v.SetDefault("backup.retention_days", 30)
	v.SetDefault("backup.prune_schedule", "0 0 3 * * *")
	v.SetDefault("tools.tar", "tar")
	v.SetDefault("tools.gpg", "gpg")
	v.SetDefault("tools.shred", "shred")
}

// Load reads the application config. An empty path yields defaults plus any
// KEEPSAKE_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KEEPSAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, domain.ConfigError("read config", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, domain.ConfigError("unmarshal config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, domain.ConfigError("invalid config", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Backup.PolicyFile == "" {
		return fmt.Errorf("backup.policy_file is required")
	}
	if c.Backup.Home == "" {
		return fmt.Errorf("backup.home is required")
	}
	if !filepath.IsAbs(c.Backup.Home) {
		return fmt.Errorf("backup.home must be absolute: %s", c.Backup.Home)
	}
	if c.Backup.DestDir == "" {
		return fmt.Errorf("backup.dest_dir is required")
	}
	if c.Backup.NamePrefix == "" || strings.ContainsRune(c.Backup.NamePrefix, filepath.Separator) {
		return fmt.Errorf("backup.name_prefix must be a plain file name")
	}
	if _, err := domain.ParseMode(c.Backup.Mode); err != nil {
		return fmt.Errorf("backup.mode: %w", err)
	}
	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("backup.retention_days must not be negative")
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if c.Backup.Schedule != "" {
		if _, err := parser.Parse(c.Backup.Schedule); err != nil {
			return fmt.Errorf("backup.schedule: %w", err)
		}
	}
	if c.Backup.PruneSchedule != "" {
		if _, err := parser.Parse(c.Backup.PruneSchedule); err != nil {
			return fmt.Errorf("backup.prune_schedule: %w", err)
		}
	}

	for i, target := range c.UploadTargets {
		if target.Type == "" {
			return fmt.Errorf("upload_targets[%d]: type is required", i)
		}
		if !target.Enabled {
			continue
		}
		switch target.Type {
		case "local":
			if target.Path == "" {
				return fmt.Errorf("upload_targets[%d]: path is required for local", i)
			}
		case "s3":
			if target.Bucket == "" || target.Region == "" {
				return fmt.Errorf("upload_targets[%d]: bucket and region are required for s3", i)
			}
		case "gdrive":
			if target.CredentialsFile == "" && (target.ClientSecretFile == "" || target.TokenFile == "") {
				return fmt.Errorf("upload_targets[%d]: gdrive needs credentials_file or client_secret_file and token_file", i)
			}
		case "telegram":
			if target.BotToken == "" || target.ChatID == "" {
				return fmt.Errorf("upload_targets[%d]: bot_token and chat_id are required for telegram", i)
			}
		}
	}

	return nil
}

func (c *Config) Mode() domain.BackupMode {
	m, _ := domain.ParseMode(c.Backup.Mode)
	return m
}

func (c *Config) GetEnabledUploadTargets() []UploadTarget {
	var enabled []UploadTarget
	for _, target := range c.UploadTargets {
		if target.Enabled {
			enabled = append(enabled, target)
		}
	}
	return enabled
}
