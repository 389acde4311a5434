package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MahammadWahab540/fullstackvoice/internal/archive"
	"github.com/MahammadWahab540/fullstackvoice/internal/presence"
	"github.com/MahammadWahab540/fullstackvoice/internal/session"
	"github.com/MahammadWahab540/fullstackvoice/internal/token"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()

	var recorder *archive.Recorder
	if cfg.archiveDSN != "" {
		store, err := archive.Open(cfg.archiveDSN)
		if err != nil {
			slog.Warn("archive unavailable, continuing without it", "error", err)
		} else {
			defer store.Close()
			recorder = archive.NewRecorder(store)
			defer recorder.Close()
			slog.Info("archive enabled")
		}
	}

	connector := session.NewConnector(session.Config{
		Tokens:           token.NewClient(cfg.backendURL),
		RoomName:         cfg.roomName,
		DefaultRTCURL:    cfg.realtimeURL,
		ConnectOptions:   cfg.connectOptions,
		ReadinessTimeout: cfg.readinessTimeout,
		WatchdogDelay:    cfg.watchdogDelay,
		IdleSettle:       cfg.idleSettle,
		ThinkingFallback: cfg.thinkingFallback,
		Archive:          recorder,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	sess, err := connector.Start(ctx, session.Profile{DisplayName: cfg.displayName})
	cancel()
	if err != nil {
		slog.Error("session start failed", "error", err)
		os.Exit(1)
	}

	sess.OnAvatarState(func(st presence.AvatarState) {
		slog.Info("avatar", "state", st.String())
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("leaving", "signal", sig)
		sess.Leave()
	case <-sess.Done():
		if sess.FlowComplete() {
			slog.Info("flow complete", "farewell", sess.Farewell())
		}
	}

	for _, u := range sess.Utterances() {
		slog.Info("transcript", "role", u.Role.String(), "final", u.IsFinal, "text", u.Text)
	}
}
