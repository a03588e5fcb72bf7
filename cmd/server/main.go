package main

import (
	"net/http"
	"os"

	"github.com/hyeonwoo/partyroom-backend/internal/logger"
	"github.com/hyeonwoo/partyroom-backend/internal/server"
)

func main() {
	cfg := server.LoadConfig()
	srv := server.New(cfg)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		mainLog := logger.With("main")
		mainLog.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
