// Package server owns process configuration, the HTTP surface, and the
// dispatcher translating inbound websocket events into engine calls.
package server

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hyeonwoo/partyroom-backend/internal/chat"
	"github.com/hyeonwoo/partyroom-backend/internal/deception"
	"github.com/hyeonwoo/partyroom-backend/internal/deduction"
	"github.com/hyeonwoo/partyroom-backend/internal/gateway"
	"github.com/hyeonwoo/partyroom-backend/internal/logger"
	"github.com/hyeonwoo/partyroom-backend/internal/registry"
	"github.com/hyeonwoo/partyroom-backend/internal/relay"
	"github.com/hyeonwoo/partyroom-backend/internal/words"
)

var log = logger.With("server")

type Config struct {
	Port             int
	AllowedOrigins   []string
	DictionaryAPIKey string
	LogLevel         string
}

// LoadConfig reads the environment, with a .env file as fallback for
// local development.
func LoadConfig() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:             3001,
		AllowedOrigins:   []string{"http://localhost:5173"},
		DictionaryAPIKey: os.Getenv("DICTIONARY_API_KEY"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
	}
	if raw := os.Getenv("PORT"); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil {
			cfg.Port = port
		} else {
			log.Warn().Str("value", raw).Msg("invalid PORT, using default")
		}
	}
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		var origins []string
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			cfg.AllowedOrigins = origins
		}
	}
	return cfg
}

type Server struct {
	cfg      Config
	hub      *gateway.Hub
	registry *registry.Registry

	chat      *chat.Engine
	deduction *deduction.Engine
	deception *deception.Engine
	relay     *relay.Engine
}

func New(cfg Config) *Server {
	logger.Setup(cfg.LogLevel)

	hub := gateway.NewHub(cfg.AllowedOrigins)
	reg := registry.New()

	s := &Server{
		cfg:       cfg,
		hub:       hub,
		registry:  reg,
		chat:      chat.NewEngine(reg, hub),
		deduction: deduction.NewEngine(hub, deduction.DefaultConfig()),
		deception: deception.NewEngine(hub, words.NewClient(cfg.DictionaryAPIKey), deception.DefaultConfig()),
		relay:     relay.NewEngine(hub),
	}
	hub.SetHandler(s)
	return s
}

// ListenAndServe blocks serving the configured port.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.RegisterRoutes(),
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  time.Minute,
		WriteTimeout: 0, // websocket connections outlive any write deadline
	}
	log.Info().Int("port", s.cfg.Port).Strs("origins", s.cfg.AllowedOrigins).Msg("listening")
	return srv.ListenAndServe()
}
