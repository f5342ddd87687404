package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/semmidev/keepsake/internal/adapter/storage"
	"github.com/semmidev/keepsake/internal/domain"
)

// DriveAuth runs a one-shot local OAuth flow for the Google Drive target and
// stores the resulting token for later runs.
type DriveAuth struct {
	config    *oauth2.Config
	logger    domain.Logger
	tokenFile string
	state     string
	done      chan error
}

func NewDriveAuth(logger domain.Logger, clientSecretPath, tokenFile string) (*DriveAuth, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if clientSecretPath == "" || tokenFile == "" {
		return nil, domain.ConfigError("gdrive auth", errors.New("client_secret_file and token_file are required"))
	}

	cfg, err := storage.LoadOAuthConfig(clientSecretPath)
	if err != nil {
		return nil, domain.ConfigError("gdrive auth", err)
	}

	state := make([]byte, 16)
	if _, err := rand.Read(state); err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	return &DriveAuth{
		config:    cfg,
		logger:    logger,
		tokenFile: tokenFile,
		state:     hex.EncodeToString(state),
		done:      make(chan error, 1),
	}, nil
}

func (s *DriveAuth) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /auth/google/drive", func(w http.ResponseWriter, r *http.Request) {
		authURL := s.config.AuthCodeURL(s.state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
		http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
	})

	mux.HandleFunc("GET /auth/google/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != s.state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code parameter", http.StatusBadRequest)
			return
		}

		token, err := s.config.Exchange(r.Context(), code)
		if err != nil {
			http.Error(w, fmt.Sprintf("token exchange failed: %v", err), http.StatusInternalServerError)
			return
		}
		if token.RefreshToken == "" {
			fmt.Fprintln(w, "No refresh token returned. Revoke app access and authorize again.")
			return
		}
		if err := storage.SaveToken(s.tokenFile, token); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			s.finish(err)
			return
		}

		fmt.Fprintf(w, "Token saved to %s. You can close this window.\n", s.tokenFile)
		s.finish(nil)
	})

	return mux
}

func (s *DriveAuth) finish(err error) {
	select {
	case s.done <- err:
	default:
	}
}

// Run serves the flow on addr until a token is saved or ctx ends.
func (s *DriveAuth) Run(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	s.logger.Infof("Open http://%s/auth/google/drive to authorize Google Drive", listener.Addr())

	var result error
	select {
	case result = <-s.done:
	case result = <-serveErr:
	case <-ctx.Done():
		result = ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warnf("OAuth server shutdown: %v", err)
	}
	if result == nil {
		s.logger.Infof("Google Drive token stored in %s", s.tokenFile)
	}
	return result
}
