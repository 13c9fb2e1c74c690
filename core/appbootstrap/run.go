package appbootstrap

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"huntdesk-ops/api"
	"huntdesk-ops/config"
	"huntdesk-ops/core/auth"
	"huntdesk-ops/core/rbac"
	"huntdesk-ops/core/store"
	"huntdesk-ops/core/utils"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultAdminUsername = "admin"
	sessionSweepInterval = 15 * time.Minute
	shutdownGrace        = 10 * time.Second
)

// Run wires the full runtime and serves until SIGINT or SIGTERM.
func Run(configPath string) error {
	logger := utils.NewLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.ApplyMigrations(ctx, db, cfg.DBDriver, logger); err != nil {
		return err
	}

	runtime, err := composeRuntime(cfg, db, logger)
	if err != nil {
		return err
	}
	if err := ensureDefaultAdmin(ctx, runtime.users, logger); err != nil {
		return err
	}

	sessionManager := auth.NewSessionManager(runtime.sessions, cfg, logger)
	server := api.NewServer(cfg, runtime.serverDeps, runtime.policy, sessionManager, logger)

	for _, w := range runtime.workers {
		if err := w.Start(); err != nil {
			return err
		}
	}
	defer func() {
		for _, w := range runtime.workers {
			w.Stop()
		}
	}()

	go sweepSessions(ctx, runtime.sessions, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Printf("HTTP listening on %s", cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown error: %v", err)
		}
	}
	return nil
}

// ensureDefaultAdmin creates the bootstrap operator account on first start.
// The generated password is printed to the log once and never stored in
// plaintext.
func ensureDefaultAdmin(ctx context.Context, users store.UsersStore, logger *utils.Logger) error {
	existing, _, err := users.FindByUsername(ctx, defaultAdminUsername)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	password, err := utils.RandString(20)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	id, err := users.Create(ctx, defaultAdminUsername, "", string(hash), []string{rbac.RoleOpsAdmin})
	if err != nil {
		return err
	}
	logger.Printf("BOOTSTRAP default admin created id=%d username=%s password=%s", id, defaultAdminUsername, password)
	return nil
}

func sweepSessions(ctx context.Context, sessions store.SessionStore, logger *utils.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				logger.Printf("session sweep error: %v", err)
				continue
			}
			if n > 0 {
				logger.Printf("session sweep removed=%d", n)
			}
		}
	}
}
