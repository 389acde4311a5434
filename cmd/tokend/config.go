package main

import (
	"time"

	"github.com/MahammadWahab540/fullstackvoice/internal/env"
)

type config struct {
	port          string
	apiKey        string
	apiSecret     string
	realtimeURL   string
	tokenTTL      time.Duration
	allowedOrigin string
}

func loadConfig() config {
	return config{
		port:          env.Str("TOKEND_PORT", "8000"),
		apiKey:        env.Str("LIVEKIT_API_KEY", "devkey"),
		apiSecret:     env.Str("LIVEKIT_API_SECRET", "devsecret-devsecret-devsecret-00"),
		realtimeURL:   env.Str("LIVEKIT_URL", "ws://localhost:7880"),
		tokenTTL:      env.Dur("TOKEN_TTL", 6*time.Hour),
		allowedOrigin: env.Str("ALLOWED_ORIGIN", "*"),
	}
}
