package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/netshell-labs/netshell/internal/config"
	"github.com/netshell-labs/netshell/internal/logging"
	"github.com/netshell-labs/netshell/internal/mcpserver"
	"github.com/netshell-labs/netshell/internal/sshsession"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Logger.Fatal().Err(err).Msg("configuration")
	}
	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stderr, // stdout carries the MCP protocol
	})
	log := logging.Component("main")

	mgr := sshsession.NewManager(cfg)
	if err := mgr.StartReaper(); err != nil {
		log.Fatal().Err(err).Msg("start reaper")
	}

	srv := mcpserver.New(mgr, cfg)

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Msg("mcp server stopped")
		}
	}

	mgr.StopReaper()
	mgr.CloseAll()
	log.Info().Msg("all sessions closed")
}
