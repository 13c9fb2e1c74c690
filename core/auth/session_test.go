package auth_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"huntdesk-ops/config"
	"huntdesk-ops/core/auth"
	"huntdesk-ops/core/store"
)

func setupSessionEnv(t *testing.T, cfg *config.AppConfig) (*auth.SessionManager, store.SessionStore, *sql.DB) {
	t.Helper()
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(t.TempDir(), "sessions.db")
	}
	db, err := store.NewDB(cfg, nil)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, "sqlite", nil); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	sessions := store.NewSessionsStore(db)
	return auth.NewSessionManager(sessions, cfg, nil), sessions, db
}

func TestSessionCreateAndLookup(t *testing.T) {
	cfg := &config.AppConfig{SessionTTL: time.Hour, CSRFKey: "csrf-key"}
	sm, sessions, _ := setupSessionEnv(t, cfg)
	ctx := context.Background()

	sess, err := sm.Create(ctx, &store.User{ID: 3, Username: "alice"}, []string{"ops"}, "10.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.ID == "" || sess.CSRFToken == "" {
		t.Fatalf("session = %+v", sess)
	}
	got, err := sessions.GetSession(ctx, sess.ID)
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if got.Username != "alice" || len(got.Roles) != 1 || got.Roles[0] != "ops" {
		t.Fatalf("record = %+v", got)
	}
	if !got.ExpiresAt.After(time.Now().UTC().Add(50 * time.Minute)) {
		t.Fatalf("expires too soon: %v", got.ExpiresAt)
	}
}

func TestSessionTTLCapped(t *testing.T) {
	cfg := &config.AppConfig{SessionTTL: 100 * time.Hour}
	sm, sessions, _ := setupSessionEnv(t, cfg)
	ctx := context.Background()

	sess, err := sm.Create(ctx, &store.User{ID: 1, Username: "bob"}, nil, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, _ := sessions.GetSession(ctx, sess.ID)
	if got.ExpiresAt.After(time.Now().UTC().Add(3*time.Hour + time.Minute)) {
		t.Fatalf("ttl not capped: %v", got.ExpiresAt)
	}
}

func TestSessionRotateInvalidatesOld(t *testing.T) {
	cfg := &config.AppConfig{SessionTTL: time.Hour}
	sm, sessions, _ := setupSessionEnv(t, cfg)
	ctx := context.Background()

	sess, err := sm.Create(ctx, &store.User{ID: 3, Username: "alice"}, []string{"ops"}, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	rotated, err := sm.Rotate(ctx, sess.ID)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.ID == sess.ID {
		t.Fatalf("rotation kept the same id")
	}
	old, _ := sessions.GetSession(ctx, sess.ID)
	if old != nil {
		t.Fatalf("old session survived rotation")
	}
	fresh, _ := sessions.GetSession(ctx, rotated.ID)
	if fresh == nil || fresh.Username != "alice" {
		t.Fatalf("rotated session = %+v", fresh)
	}
}

func TestSessionDeleteExpired(t *testing.T) {
	cfg := &config.AppConfig{SessionTTL: time.Hour}
	sm, sessions, _ := setupSessionEnv(t, cfg)
	ctx := context.Background()

	sess, err := sm.Create(ctx, &store.User{ID: 3, Username: "alice"}, nil, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	removed, err := sessions.DeleteExpired(ctx, time.Now().UTC().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	got, _ := sessions.GetSession(ctx, sess.ID)
	if got != nil {
		t.Fatalf("expired session still readable")
	}
}

func TestCSRFKeyedTokens(t *testing.T) {
	tok, err := auth.GenerateCSRF("key", "sess-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !auth.ValidCSRF("key", "sess-1", "", tok) {
		t.Fatalf("derived token rejected")
	}
	if auth.ValidCSRF("key", "sess-2", "", tok) {
		t.Fatalf("token valid for another session")
	}
	if auth.ValidCSRF("other-key", "sess-1", "", tok) {
		t.Fatalf("token valid under another key")
	}
	if auth.ValidCSRF("key", "sess-1", "", "") {
		t.Fatalf("empty token accepted")
	}
}

func TestCSRFStoredTokenFallback(t *testing.T) {
	if !auth.ValidCSRF("", "sess-1", "random-token", "random-token") {
		t.Fatalf("stored token rejected")
	}
	if auth.ValidCSRF("", "sess-1", "random-token", "different") {
		t.Fatalf("mismatched token accepted")
	}
	if auth.ValidCSRF("", "sess-1", "", "anything") {
		t.Fatalf("empty stored token accepted")
	}
}
