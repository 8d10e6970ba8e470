package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/redstack/redmem/internal/controlplane"
	"github.com/redstack/redmem/internal/drift"
	"github.com/redstack/redmem/internal/embedding"
	"github.com/redstack/redmem/internal/recall"
	"github.com/redstack/redmem/internal/server"
	"github.com/redstack/redmem/internal/world"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the memory and world-state service",
		Run:   runServe,
	}
	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	logger := newLogger()

	st, err := openStore(cfg, logger)
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	machine := world.NewMachine(st, world.DefaultEdges(), logger)

	var gateway *recall.Gateway
	if cfg.Features.SemanticMemory {
		embedder := embedding.NewHash(cfg.Vector.Dim)

		var index recall.Index
		if cfg.Vector.URL != "" {
			index = recall.NewQdrantIndex(recall.QdrantConfig{
				URL:        cfg.Vector.URL,
				Collection: cfg.Vector.Collection,
				Dim:        cfg.Vector.Dim,
			}, embedder)
		} else {
			index, err = recall.NewChromemIndex(cfg.Vector.Collection, embedder)
			if err != nil {
				exitErr("embedded vector index", err)
			}
		}

		gateway, err = recall.NewGateway(index, recall.GatewayConfig{
			Budget: time.Duration(cfg.Recall.BudgetMS) * time.Millisecond,
			Breaker: recall.BreakerConfig{
				FailureThreshold: cfg.Recall.FailureThreshold,
				Window:           time.Duration(cfg.Recall.WindowSeconds) * time.Second,
				Cooldown:         time.Duration(cfg.Recall.CooldownSeconds) * time.Second,
			},
			CacheEntries: cfg.Recall.CacheEntries,
		}, logger)
		if err != nil {
			exitErr("recall gateway", err)
		}
	}

	var writer drift.MemoryWriter
	if cfg.Features.ShadowObservation {
		writer = st
	}
	recorder := drift.NewRecorder(writer, logger)

	control := controlplane.New(cfg.ControlPlane.BaseURL,
		time.Duration(cfg.ControlPlane.TimeoutSeconds)*time.Second, logger)

	srv := server.New(st, machine, gateway, recorder, control, cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx); err != nil {
		exitErr("serve", err)
	}
}
