package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/bayesgraph/internal/checkpoint"
	"github.com/danielpatrickdp/bayesgraph/internal/config"
	"github.com/danielpatrickdp/bayesgraph/internal/eval"
	"github.com/danielpatrickdp/bayesgraph/internal/logging"
	"github.com/danielpatrickdp/bayesgraph/internal/mcmc"
	"github.com/danielpatrickdp/bayesgraph/internal/models"
)

// #region execute
func execute(cmd *cobra.Command, f flags, resume bool) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.generations > 0 {
		cfg.Chain.Generations = f.generations
	}

	if err := logging.SetLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	var jsonOut io.Writer
	if cfg.Log.JSONPath != "" {
		file, err := os.OpenFile(cfg.Log.JSONPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open json log: %w", err)
		}
		defer file.Close()
		jsonOut = file
	}
	logger := logging.NewLogger(cmd.ErrOrStderr(), jsonOut)

	store, err := checkpoint.NewStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	model, err := models.FromConfig(cfg)
	if err != nil {
		return fmt.Errorf("build model: %w", err)
	}
	if err := store.SaveTopology(model.Graph); err != nil {
		return err
	}

	chainID := f.chainID
	if chainID == "" {
		chainID = "chain-" + uuid.New().String()[:8]
	}
	chain, err := mcmc.NewChain(model.Graph, model.Moves, mcmc.ChainOptions{
		ID:           chainID,
		Seed:         cfg.Chain.Seed,
		Config:       cfg.Chain.Cadences(),
		Sink:         logging.NewMoveLog(store.DB()),
		Checkpointer: store,
		Validator:    eval.NewEvalHarness(cfg.Eval.Harness()),
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	if resume {
		rec, err := store.GetCurrent(chainID)
		if err != nil {
			return fmt.Errorf("resume %s: %w", chainID, err)
		}
		if err := chain.Resume(rec.ChainState); err != nil {
			return err
		}
		logger.Info("resumed", "chain", chainID, "version", rec.VersionID, "gen", rec.Generation)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, logger)
		defer shutdown()
	}

	start := time.Now()
	var summary mcmc.RunSummary
	if cfg.MC3.Chains > 1 {
		summary, err = runCoupled(ctx, chain, cfg)
	} else {
		summary, err = runSingle(ctx, chain, cfg.Chain.Generations)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		logger.Warn("interrupted", "chain", chainID)
	}
	logger.Info("run finished", "chain", chainID, "elapsed", time.Since(start).Round(time.Millisecond))
	printSummary(cmd.OutOrStdout(), chainID, summary)
	return nil
}

// #endregion execute

// #region run
// runSingle runs one chain and stores a final checkpoint even when
// interrupted.
func runSingle(ctx context.Context, chain *mcmc.Chain, generations int) (mcmc.RunSummary, error) {
	results, runErr := chain.Run(ctx, generations)
	if err := chain.Checkpoint(); err != nil {
		return mcmc.RunSummary{}, errors.Join(runErr, err)
	}
	return mcmc.Summarize(results), runErr
}

// runCoupled runs an MC3 ensemble built from chain. The summary covers the
// chain that ends cold.
func runCoupled(ctx context.Context, chain *mcmc.Chain, cfg config.RunConfig) (mcmc.RunSummary, error) {
	mc3, err := mcmc.NewMC3(chain, cfg.Coupling())
	if err != nil {
		return mcmc.RunSummary{}, err
	}
	runErr := mc3.Run(ctx, cfg.Chain.Generations)
	cold := mc3.ColdChain()
	s := mcmc.RunSummary{Generations: cold.Generation(), ByVeto: map[mcmc.VetoType]int{}}
	for _, m := range cold.Moves() {
		st := m.Stats()
		s.Tried += st.Tried
		s.Accepted += st.Accepted
		s.Vetoed += st.Vetoed
		s.PerMove = append(s.PerMove, st)
	}
	s.Rejected = s.Tried - s.Accepted
	tried, accepted := mc3.SwapStats()
	cold.Logger().Info("swaps", "tried", tried, "accepted", accepted)
	return s, runErr
}

// #endregion run

// #region metrics
func serveMetrics(addr string, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "addr", addr, "err", err)
		}
	}()
	logger.Info("metrics listening", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// #endregion metrics

// #region output
func printSummary(w io.Writer, chainID string, s mcmc.RunSummary) {
	fmt.Fprintf(w, "Chain %s: %d generations, %d moves, acceptance %.3f\n",
		chainID, s.Generations, s.Tried, s.AcceptanceRate())
	if s.Vetoed > 0 {
		fmt.Fprintf(w, "  vetoed: %d\n", s.Vetoed)
		for kind, n := range s.ByVeto {
			fmt.Fprintf(w, "    %-18s %d\n", kind, n)
		}
	}
	fmt.Fprintf(w, "%-20s  %8s  %8s  %8s  %10s\n", "Move", "Tried", "Accept", "Rate", "Tuning")
	for _, m := range s.PerMove {
		fmt.Fprintf(w, "%-20s  %8d  %8d  %8.3f  %10.4f\n", m.Name, m.Tried, m.Accepted, m.AcceptanceRate(), m.Tuning)
	}
}

// #endregion output
