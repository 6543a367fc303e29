package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/skilldag/skilldag/pkg/config"
)

func newValidateCommand() *cobra.Command {
	var (
		environment string
		skipPolicy  bool
	)

	cmd := &cobra.Command{
		Use:   "validate <workflow>...",
		Short: "Validate workflow files",
		Long: `Validate workflow files without running them.

This command checks:
  - file syntax (YAML, JSON or CUE) and the workflow schema
  - that every skill reference loads
  - graph structure: unknown dependencies, self-dependencies and cycles
  - admission policies (built-in and --policy)`,
		Example: `  # Validate one workflow
  skilldag validate pipeline.yaml

  # Validate against production policies
  skilldag validate --env production --policy ./policies flows/*.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			eng, err := newPolicyEngine(ctx)
			if err != nil {
				return err
			}

			var failed int
			for _, path := range args {
				log.Debug().Str("path", path).Msg("Validating workflow")

				if err := validateOne(ctx, path, func(wf *workflow) error {
					if skipPolicy {
						return nil
					}
					_, err := checkPolicies(ctx, eng, wf, "validate", environment)
					return err
				}); err != nil {
					failed++
					red.Fprintf(os.Stderr, "✗ %s\n", path)
					fmt.Fprintf(os.Stderr, "  %v\n", err)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d workflow(s) invalid", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&environment, "env", "e", "", "environment passed to policies (e.g. production)")
	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "check structure only")

	return cmd
}

func validateOne(ctx context.Context, path string, check func(*workflow) error) error {
	parsed, err := config.NewParser().ParseFile(ctx, path)
	if err != nil {
		return err
	}
	if err := parsed.Err(); err != nil {
		return err
	}

	wf, err := openWorkflow(ctx, path)
	if err != nil {
		return err
	}
	defer wf.Close(ctx)

	if err := check(wf); err != nil {
		return err
	}

	layers, err := wf.graph.Layers()
	if err != nil {
		return err
	}
	green.Printf("✓ %s", filepath.Base(path))
	fmt.Printf(": %s is valid (%d skills, %d layers)\n", wf.spec.Name, wf.graph.Len(), len(layers))
	return nil
}
