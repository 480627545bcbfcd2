package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/spaceseries/spacechat/internal/config"
)

func TestAppLifecycle(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "app.db")
	cfg.Redis.Enabled = false

	logger := zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())

	a, err := New(ctx, &cfg, &logger, nil)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if a.Chat() == nil || a.Users() == nil || a.Roster() == nil || a.Sync() == nil {
		t.Fatal("app wiring incomplete")
	}
	if a.Sync().UsingNetwork() {
		t.Fatal("expected memory sync backend")
	}

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestAppReload(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "app.db")
	cfg.Redis.Enabled = false

	logger := zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := New(ctx, &cfg, &logger, nil)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	next := cfg
	next.Channels = map[string]config.ChannelConfig{"trade": {}}
	a.Reload(&next)

	if _, ok := a.channels.Get("trade"); !ok {
		t.Fatal("reload did not apply channel changes")
	}

	if err := a.store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
}