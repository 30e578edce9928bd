package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/danielpatrickdp/bayesgraph/internal/checkpoint"
	"github.com/danielpatrickdp/bayesgraph/internal/logging"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to bayesgraph.db")
	chain := flag.String("chain", "", "restrict to one chain")
	last := flag.Int("last", 20, "show N most recent checkpoints or moves")
	version := flag.String("version", "", "show single checkpoint detail")
	topology := flag.Bool("topology", false, "show the saved model graph")
	moves := flag.Bool("moves", false, "show the move log of --chain")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/bayesgraph.db [--chain id] [--last N] [--version id] [--topology] [--moves] [--json]")
		os.Exit(2)
	}

	store, err := checkpoint.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	w := os.Stdout
	switch {
	case *topology:
		err = runTopologyMode(w, store, *jsonOut)
	case *moves:
		err = runMovesMode(w, store, *chain, *last, *jsonOut)
	case *version != "":
		err = runDetailMode(w, store, *version, *jsonOut)
	default:
		err = runListMode(w, store, *chain, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	VersionID    string   `json:"version_id"`
	ChainID      string   `json:"chain_id"`
	Generation   int      `json:"generation"`
	Heat         float64  `json:"heat"`
	LogPosterior *float64 `json:"log_posterior,omitempty"`
	CreatedAt    string   `json:"created_at"`
}

func runListMode(w io.Writer, store *checkpoint.Store, chain string, last int, jsonOut bool) error {
	recs, err := store.ListVersions(chain, last)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(os.Stderr, "no checkpoints found")
		return nil
	}

	// store returns newest first; print chronologically
	rows := make([]listRow, len(recs))
	for i, r := range recs {
		rows[len(recs)-1-i] = listRow{
			VersionID:    r.VersionID,
			ChainID:      r.ChainID,
			Generation:   r.Generation,
			Heat:         r.Heat,
			LogPosterior: finite(r.LogPosterior),
			CreatedAt:    r.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}
	if jsonOut {
		return printJSON(w, rows)
	}

	fmt.Fprintf(w, "%-10s  %-16s  %10s  %6s  %14s  %s\n", "Version", "Chain", "Gen", "Heat", "Log Post", "Time")
	for _, r := range rows {
		fmt.Fprintf(w, "%-10s  %-16s  %10d  %6.3f  %14s  %s\n",
			shortID(r.VersionID), r.ChainID, r.Generation, r.Heat, formatFloat(r.LogPosterior), r.CreatedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	VersionID    string             `json:"version_id"`
	ParentID     string             `json:"parent_id"`
	ChainID      string             `json:"chain_id"`
	Generation   int                `json:"generation"`
	Seed         uint64             `json:"seed"`
	Heat         float64            `json:"heat"`
	LogPosterior *float64           `json:"log_posterior,omitempty"`
	Values       map[string]string  `json:"values"`
	Tuning       map[string]float64 `json:"tuning"`
	CreatedAt    string             `json:"created_at"`
}

func runDetailMode(w io.Writer, store *checkpoint.Store, versionID string, jsonOut bool) error {
	r, err := store.GetVersion(versionID)
	if err != nil {
		return err
	}
	out := detailOutput{
		VersionID:    r.VersionID,
		ParentID:     r.ParentID,
		ChainID:      r.ChainID,
		Generation:   r.Generation,
		Seed:         r.Seed,
		Heat:         r.Heat,
		LogPosterior: finite(r.LogPosterior),
		Values:       r.Values,
		Tuning:       r.Tuning,
		CreatedAt:    r.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if jsonOut {
		return printJSON(w, out)
	}

	fmt.Fprintf(w, "Version:    %s\n", out.VersionID)
	fmt.Fprintf(w, "Parent:     %s\n", out.ParentID)
	fmt.Fprintf(w, "Chain:      %s\n", out.ChainID)
	fmt.Fprintf(w, "Generation: %d\n", out.Generation)
	fmt.Fprintf(w, "Seed:       %d\n", out.Seed)
	fmt.Fprintf(w, "Heat:       %.4f\n", out.Heat)
	fmt.Fprintf(w, "Log Post:   %s\n", formatFloat(out.LogPosterior))
	fmt.Fprintf(w, "Created:    %s\n", out.CreatedAt)

	fmt.Fprintf(w, "\nValues:\n")
	for _, name := range sortedKeys(out.Values) {
		fmt.Fprintf(w, "  %-20s %s\n", name, out.Values[name])
	}
	if len(out.Tuning) > 0 {
		fmt.Fprintf(w, "\nTuning:\n")
		for _, name := range sortedKeys(out.Tuning) {
			fmt.Fprintf(w, "  %-20s %.4f\n", name, out.Tuning[name])
		}
	}
	return nil
}

// #endregion detail-mode

// #region topology-mode

type topologyOutput struct {
	Nodes []checkpoint.NodeRow `json:"nodes"`
	Edges []checkpoint.EdgeRow `json:"edges"`
}

func runTopologyMode(w io.Writer, store *checkpoint.Store, jsonOut bool) error {
	nodes, edges, err := store.Topology()
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(w, topologyOutput{Nodes: nodes, Edges: edges})
	}
	fmt.Fprintf(w, "%4s  %-20s  %s\n", "ID", "Node", "Kind")
	for _, n := range nodes {
		fmt.Fprintf(w, "%4d  %-20s  %s\n", n.ID, n.Name, n.Kind)
	}
	fmt.Fprintf(w, "\nEdges:\n")
	for _, e := range edges {
		fmt.Fprintf(w, "  %s -> %s\n", e.Parent, e.Child)
	}
	return nil
}

// #endregion topology-mode

// #region moves-mode

type moveRow struct {
	Generation int      `json:"generation"`
	Move       string   `json:"move"`
	Heat       float64  `json:"heat"`
	Action     string   `json:"action"`
	Veto       string   `json:"veto,omitempty"`
	LnRatio    *float64 `json:"ln_ratio,omitempty"`
	Tuning     float64  `json:"tuning"`
}

type movesOutput struct {
	Moves      []moveRow          `json:"moves"`
	Acceptance map[string]float64 `json:"acceptance"`
}

func runMovesMode(w io.Writer, store *checkpoint.Store, chain string, last int, jsonOut bool) error {
	if chain == "" {
		return fmt.Errorf("--moves needs --chain")
	}
	log := logging.NewMoveLog(store.DB())
	entries, err := log.Entries(chain, last)
	if err != nil {
		return err
	}
	acc, err := log.AcceptanceByMove(chain)
	if err != nil {
		return err
	}

	out := movesOutput{Moves: make([]moveRow, len(entries)), Acceptance: acc}
	for i, e := range entries {
		out.Moves[len(entries)-1-i] = moveRow{
			Generation: e.Generation,
			Move:       e.Move,
			Heat:       e.Heat,
			Action:     e.Action,
			Veto:       e.Veto,
			LnRatio:    finite(e.LnRatio),
			Tuning:     e.Tuning,
		}
	}
	if jsonOut {
		return printJSON(w, out)
	}

	fmt.Fprintf(w, "%8s  %-20s  %6s  %-7s  %10s  %s\n", "Gen", "Move", "Heat", "Action", "Ln Ratio", "Veto")
	for _, m := range out.Moves {
		fmt.Fprintf(w, "%8d  %-20s  %6.3f  %-7s  %10s  %s\n",
			m.Generation, m.Move, m.Heat, m.Action, formatFloat(m.LnRatio), m.Veto)
	}
	fmt.Fprintf(w, "\nAcceptance (all moves):\n")
	for _, name := range sortedKeys(acc) {
		fmt.Fprintf(w, "  %-20s %.3f\n", name, acc[name])
	}
	return nil
}

// #endregion moves-mode

// #region output

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func formatFloat(f *float64) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *f)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
