package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MahammadWahab540/fullstackvoice/internal/metrics"
)

type deps struct {
	cfg config
}

func registerRoutes(mux *http.ServeMux, d deps) {
	mux.HandleFunc("GET /get-token", d.handleGetToken)
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// videoGrant mirrors the grant block the realtime backend expects inside
// its access tokens.
type videoGrant struct {
	RoomJoin bool   `json:"roomJoin"`
	Room     string `json:"room"`
}

type tokenClaims struct {
	Name  string     `json:"name,omitempty"`
	Video videoGrant `json:"video"`
	jwt.RegisteredClaims
}

// handleGetToken mints a room-join access token for the given identity.
func (d deps) handleGetToken(w http.ResponseWriter, r *http.Request) {
	roomName := r.URL.Query().Get("room_name")
	identity := r.URL.Query().Get("identity")
	if roomName == "" || identity == "" {
		http.Error(w, "room_name and identity are required", http.StatusBadRequest)
		return
	}

	now := time.Now()
	claims := tokenClaims{
		Name:  identity,
		Video: videoGrant{RoomJoin: true, Room: roomName},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    d.cfg.apiKey,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d.cfg.tokenTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(d.cfg.apiSecret))
	if err != nil {
		slog.Error("sign token", "error", err)
		http.Error(w, "could not mint token", http.StatusInternalServerError)
		return
	}

	metrics.TokensIssued.Inc()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"token":       signed,
		"livekit_url": d.cfg.realtimeURL,
	})
}

// withCORS allows browser clients served from another origin to call the
// token endpoint.
func withCORS(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
