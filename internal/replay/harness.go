// Package replay re-runs stored checkpoint intervals and checks that the
// chain reaches the same state again.
package replay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/danielpatrickdp/bayesgraph/internal/mcmc"
)

var ErrBadInterval = errors.New("replay interval must move forward within one chain")

// #region types
// Result is the outcome of replaying one checkpoint interval.
type Result struct {
	FromGeneration int
	ToGeneration   int
	Diverged       []string // node names whose replayed value differs
	TuningDiverged []string // tuning keys whose replayed value differs
	RNGDiverged    bool
	LogPosterior   float64 // replayed value
}

// Matched reports whether the replay reproduced the stored state.
func (r Result) Matched() bool {
	return len(r.Diverged) == 0 && len(r.TuningDiverged) == 0 && !r.RNGDiverged
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	Intervals   int
	Matched     int
	Diverged    int
	Generations int
}

// #endregion types

// #region replay
// Interval resumes chain at from, runs it to to.Generation and compares the
// result with to. The chain should carry no sink or checkpointer so the
// replay leaves no trace in the store.
func Interval(ctx context.Context, chain *mcmc.Chain, from, to mcmc.ChainState) (Result, error) {
	if from.ChainID != to.ChainID || to.Generation <= from.Generation {
		return Result{}, fmt.Errorf("%s@%d to %s@%d: %w", from.ChainID, from.Generation, to.ChainID, to.Generation, ErrBadInterval)
	}
	if err := chain.Resume(from); err != nil {
		return Result{}, fmt.Errorf("resume generation %d: %w", from.Generation, err)
	}
	if _, err := chain.Run(ctx, to.Generation-from.Generation); err != nil {
		return Result{}, fmt.Errorf("replay to generation %d: %w", to.Generation, err)
	}
	got, err := chain.Snapshot()
	if err != nil {
		return Result{}, err
	}

	res := Result{
		FromGeneration: from.Generation,
		ToGeneration:   to.Generation,
		Diverged:       diff(to.Values, got.Values, func(a, b string) bool { return a == b }),
		TuningDiverged: diff(to.Tuning, got.Tuning, sameFloat),
		RNGDiverged:    !bytes.Equal(to.RNGState, got.RNGState),
		LogPosterior:   got.LogPosterior,
	}
	return res, nil
}

// History replays every consecutive pair of states, which must belong to
// one chain and be ordered by generation.
func History(ctx context.Context, chain *mcmc.Chain, states []mcmc.ChainState) ([]Result, Summary, error) {
	var sum Summary
	results := make([]Result, 0, max(0, len(states)-1))
	for i := 1; i < len(states); i++ {
		r, err := Interval(ctx, chain, states[i-1], states[i])
		if err != nil {
			return results, sum, err
		}
		results = append(results, r)
		sum.Intervals++
		sum.Generations += r.ToGeneration - r.FromGeneration
		if r.Matched() {
			sum.Matched++
		} else {
			sum.Diverged++
		}
	}
	return results, sum, nil
}

// #endregion replay

// #region helpers
func diff[V any](want, got map[string]V, eq func(a, b V) bool) []string {
	var out []string
	for k, w := range want {
		if g, ok := got[k]; !ok || !eq(w, g) {
			out = append(out, k)
		}
	}
	for k := range got {
		if _, ok := want[k]; !ok {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

func sameFloat(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

// #endregion helpers
