package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/danielpatrickdp/bayesgraph/internal/checkpoint"
	"github.com/danielpatrickdp/bayesgraph/internal/config"
	"github.com/danielpatrickdp/bayesgraph/internal/logging"
	"github.com/danielpatrickdp/bayesgraph/internal/mcmc"
	"github.com/danielpatrickdp/bayesgraph/internal/models"
	"github.com/danielpatrickdp/bayesgraph/internal/replay"
)

// #region main

func main() {
	cfgPath := flag.String("config", "bayesgraph.yaml", "run configuration the chain was sampled with")
	chainID := flag.String("chain", "", "chain to replay")
	last := flag.Int("last", 10, "replay the N most recent checkpoint intervals")
	flag.Parse()

	if *chainID == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --chain id [--config bayesgraph.yaml] [--last N]")
		os.Exit(2)
	}
	os.Exit(run(*cfgPath, *chainID, *last))
}

// #endregion main

// #region run

func run(cfgPath, chainID string, last int) int {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	if err := logging.SetLevel(cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "log level: %v\n", err)
		return 2
	}

	store, err := checkpoint.NewStore(cfg.Store.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()

	recs, err := store.ListVersions(chainID, last+1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list checkpoints: %v\n", err)
		return 2
	}
	if len(recs) < 2 {
		fmt.Fprintf(os.Stderr, "chain %s has %d checkpoints, need at least 2\n", chainID, len(recs))
		return 2
	}
	states := make([]mcmc.ChainState, len(recs))
	for i, r := range recs {
		states[i] = r.ChainState
	}
	slices.SortStableFunc(states, func(a, b mcmc.ChainState) int { return a.Generation - b.Generation })

	model, err := models.FromConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build model: %v\n", err)
		return 2
	}
	chain, err := mcmc.NewChain(model.Graph, model.Moves, mcmc.ChainOptions{
		ID:     chainID,
		Seed:   cfg.Chain.Seed,
		Config: mcmc.ChainConfig{Schedule: cfg.Chain.Schedule, TuneEvery: cfg.Chain.TuneEvery},
		Logger: logging.NewLogger(os.Stderr, nil),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "chain: %v\n", err)
		return 2
	}

	results, sum, err := replay.History(context.Background(), chain, states)
	for _, r := range results {
		printResult(r)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}

	fmt.Println("\n=== Replay Summary ===")
	fmt.Printf("Intervals:   %d\n", sum.Intervals)
	fmt.Printf("Generations: %d\n", sum.Generations)
	fmt.Printf("Matched:     %d\n", sum.Matched)
	fmt.Printf("Diverged:    %d\n", sum.Diverged)
	if sum.Diverged > 0 {
		return 1
	}
	return 0
}

// #endregion run

// #region output

func printResult(r replay.Result) {
	status := "ok"
	if !r.Matched() {
		var parts []string
		if len(r.Diverged) > 0 {
			parts = append(parts, "values "+strings.Join(r.Diverged, ","))
		}
		if len(r.TuningDiverged) > 0 {
			parts = append(parts, "tuning "+strings.Join(r.TuningDiverged, ","))
		}
		if r.RNGDiverged {
			parts = append(parts, "rng")
		}
		status = "DIVERGED: " + strings.Join(parts, "; ")
	}
	fmt.Printf("gen %8d -> %-8d  %s\n", r.FromGeneration, r.ToGeneration, status)
}

// #endregion output
