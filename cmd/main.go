package main

import (
	"github.com/BetterCallFirewall/Scanhound/internal/broker"
	"github.com/BetterCallFirewall/Scanhound/internal/cache"
	"github.com/BetterCallFirewall/Scanhound/internal/config"
	"github.com/BetterCallFirewall/Scanhound/internal/coordinator"
	"github.com/BetterCallFirewall/Scanhound/internal/logging"
	"github.com/BetterCallFirewall/Scanhound/internal/probe"
	"github.com/BetterCallFirewall/Scanhound/internal/registry"
	"github.com/BetterCallFirewall/Scanhound/internal/rules"
	"github.com/BetterCallFirewall/Scanhound/internal/store"
	"github.com/BetterCallFirewall/Scanhound/internal/stream"
	"github.com/BetterCallFirewall/Scanhound/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init(false)
		logging.L().Fatalf("Failed to load config: %v", err)
	}
	logging.Init(cfg.Debug)
	logger := logging.L()

	findings, err := store.NewFindingsStore(cfg.Data.Dir)
	if err != nil {
		logger.Fatalf("Failed to open findings store: %v", err)
	}
	dossiers, err := store.NewDossierStore(cfg.Data.Dir)
	if err != nil {
		logger.Fatalf("Failed to open dossier store: %v", err)
	}

	// The summary cache is a pure function of the stores; both write
	// paths invalidate it synchronously.
	summaries := cache.NewSummaryCache(findings)
	findings.AddListener(summaries)
	dossiers.AddListener(summaries)

	events := broker.New[stream.Event](256)
	coord := coordinator.New(
		registry.New(),
		events,
		rules.NewEngine(),
		probe.NewClient(probe.ClientConfig{Timeout: cfg.Scan.ProbeTimeout}),
		findings,
		dossiers,
		cfg.Scan.HeartbeatInterval,
	)

	server := web.NewServer(cfg, coord, summaries, dossiers, stream.NewHub(events))
	logger.Infow("scanhound listening", "addr", cfg.Web.ListenAddr)
	logger.Fatal(server.Start())
}
