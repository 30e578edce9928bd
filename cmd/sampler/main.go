package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

// #region main
func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Printf("sampler: %v", err)
		os.Exit(1)
	}
}

// #endregion main

// #region commands
type flags struct {
	configPath  string
	chainID     string
	generations int
}

func newRootCmd() *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:           "sampler",
		Short:         "Run and resume MCMC chains over a model graph",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "bayesgraph.yaml", "run configuration file")
	root.PersistentFlags().IntVarP(&f.generations, "generations", "n", 0, "override chain.generations")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start a new chain (or an MC3 ensemble when mc3.chains > 1)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd, f, false)
		},
	}
	runCmd.Flags().StringVar(&f.chainID, "chain", "", "chain id (random when empty)")

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Continue a chain from its latest checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd, f, true)
		},
	}
	resumeCmd.Flags().StringVar(&f.chainID, "chain", "", "chain id to resume")
	_ = resumeCmd.MarkFlagRequired("chain")

	root.AddCommand(runCmd, resumeCmd)
	return root
}

// #endregion commands
