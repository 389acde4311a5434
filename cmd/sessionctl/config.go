package main

import (
	"time"

	"github.com/MahammadWahab540/fullstackvoice/internal/env"
	"github.com/MahammadWahab540/fullstackvoice/internal/rtc"
)

type config struct {
	backendURL       string
	roomName         string
	realtimeURL      string
	displayName      string
	archiveDSN       string
	readinessTimeout time.Duration
	watchdogDelay    time.Duration
	idleSettle       time.Duration
	thinkingFallback time.Duration
	connectOptions   rtc.ConnectOptions
}

func loadConfig() config {
	return config{
		backendURL:       env.Str("BACKEND_URL", "http://localhost:8000"),
		roomName:         env.Str("ROOM_NAME", "onboarding-room"),
		realtimeURL:      env.Str("LIVEKIT_URL", "ws://localhost:7880"),
		displayName:      env.Str("DISPLAY_NAME", ""),
		archiveDSN:       env.Str("ARCHIVE_DSN", ""),
		readinessTimeout: env.Dur("READINESS_TIMEOUT", 8*time.Second),
		watchdogDelay:    env.Dur("WATCHDOG_DELAY", 6*time.Second),
		idleSettle:       env.Dur("IDLE_SETTLE", 1500*time.Millisecond),
		thinkingFallback: env.Dur("THINKING_FALLBACK", 8*time.Second),
		connectOptions: rtc.ConnectOptions{
			AdaptiveStream: env.Bool("ADAPTIVE_STREAM", true),
			Dynacast:       env.Bool("DYNACAST", true),
			AudioBitrate:   env.Int("MAX_AUDIO_BITRATE", 32000),
			RelayOnly:      env.Bool("RELAY_ONLY", false),
			Reconnect:      rtc.DefaultReconnectPolicy(),
		},
	}
}
