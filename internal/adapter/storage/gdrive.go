package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/semmidev/keepsake/internal/config"
)

type GDriveStorage struct {
	service  *drive.Service
	folderID string
}

func NewGDrive(ctx context.Context, cfg *config.UploadTarget) (*GDriveStorage, error) {
	var opt option.ClientOption
	if cfg.CredentialsFile != "" {
		opt = option.WithCredentialsFile(cfg.CredentialsFile)
	} else {
		oauthCfg, err := LoadOAuthConfig(cfg.ClientSecretFile)
		if err != nil {
			return nil, err
		}
		token, err := LoadToken(cfg.TokenFile)
		if err != nil {
			return nil, err
		}
		opt = option.WithTokenSource(oauthCfg.TokenSource(ctx, token))
	}

	service, err := drive.NewService(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &GDriveStorage{
		service:  service,
		folderID: cfg.FolderID,
	}, nil
}

// LoadOAuthConfig reads an OAuth client secret limited to files the app creates.
func LoadOAuthConfig(clientSecretPath string) (*oauth2.Config, error) {
	b, err := os.ReadFile(clientSecretPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret: %w", err)
	}
	return cfg, nil
}

func LoadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read token file: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(b, &token); err != nil {
		return nil, fmt.Errorf("unable to parse token file: %w", err)
	}
	if token.RefreshToken == "" {
		return nil, fmt.Errorf("token file %s has no refresh token", path)
	}
	return &token, nil
}

// SaveToken writes token owner-only.
func SaveToken(path string, token *oauth2.Token) error {
	b, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(path, b, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return os.Chmod(path, 0600)
}

func quoteQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func (g *GDriveStorage) parentClause() string {
	if g.folderID == "" {
		return "'root' in parents"
	}
	return fmt.Sprintf("'%s' in parents", quoteQuery(g.folderID))
}

func (g *GDriveStorage) Upload(ctx context.Context, localPath string, remoteName string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	fileMetadata := &drive.File{Name: remoteName}
	if g.folderID != "" {
		fileMetadata.Parents = []string{g.folderID}
	}

	_, err = g.service.Files.Create(fileMetadata).
		Media(file).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to upload to gdrive: %w", err)
	}

	return nil
}

func (g *GDriveStorage) query(ctx context.Context, q string) ([]*drive.File, error) {
	var files []*drive.File
	err := g.service.Files.List().
		Q(q).
		Fields("nextPageToken, files(id, name, createdTime)").
		Pages(ctx, func(page *drive.FileList) error {
			files = append(files, page.Files...)
			return nil
		})
	return files, err
}

func (g *GDriveStorage) List(ctx context.Context) ([]string, error) {
	files, err := g.query(ctx, g.parentClause()+" and trashed=false")
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	var names []string
	for _, file := range files {
		names = append(names, file.Name)
	}
	return names, nil
}

func (g *GDriveStorage) Delete(ctx context.Context, remoteName string) error {
	q := fmt.Sprintf("%s and name='%s' and trashed=false", g.parentClause(), quoteQuery(remoteName))
	files, err := g.query(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to find file: %w", err)
	}

	if len(files) == 0 {
		return fmt.Errorf("file not found: %s", remoteName)
	}

	for _, file := range files {
		if err := g.service.Files.Delete(file.Id).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to delete file: %w", err)
		}
	}
	return nil
}

func (g *GDriveStorage) GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error) {
	q := fmt.Sprintf("%s and trashed=false and createdTime < '%s'",
		g.parentClause(), cutoffTime.UTC().Format(time.RFC3339))

	files, err := g.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list old files: %w", err)
	}

	var names []string
	for _, file := range files {
		names = append(names, file.Name)
	}
	return names, nil
}
