package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	historyPath string
	policyPaths []string
	verbose     bool
	jsonOutput  bool

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "skilldag",
		Short: "skilldag - dependency-ordered skill execution",
		Long: `skilldag runs workflows of skills in dependency order.

A workflow file (YAML, JSON or CUE) names its skills, their dependencies and how
outputs flow between them. skilldag validates the graph, checks it against admission
policies, then executes one skill at a time with per-skill retry. A skill that
exhausts its retries stops every skill that depends on it.

Skills are resolved by reference:
  - builtin::<name>             built-in skills (see "skilldag skills")
  - path/to/skill.star[::sym]   Starlark skills
  - path/to/skill.wasm[::sym]   WebAssembly skills`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&historyPath, "history", ".skilldag/history.db", "run history database path")
	rootCmd.PersistentFlags().StringSliceVar(&policyPaths, "policy", nil, "additional policy files or directories")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newLayersCommand())
	rootCmd.AddCommand(newGraphCommand())
	rootCmd.AddCommand(newSkillsCommand())
	rootCmd.AddCommand(newPoliciesCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
