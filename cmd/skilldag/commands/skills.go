package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSkillsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "skills",
		Short: "List the built-in skills",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			l := newLoader(".")
			defer l.Close(ctx)

			type entry struct {
				Ref         string `json:"ref"`
				Version     string `json:"version"`
				Description string `json:"description"`
			}

			var entries []entry
			for _, ref := range l.Registry().List() {
				skill, err := l.Load(ctx, ref)
				if err != nil {
					return err
				}
				entries = append(entries, entry{Ref: ref, Version: skill.Version(), Description: skill.Description()})
			}

			if jsonOutput {
				return printJSON(os.Stdout, entries)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "REFERENCE\tVERSION\tDESCRIPTION")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Ref, e.Version, e.Description)
			}
			return tw.Flush()
		},
	}
}

func newPoliciesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "List the admission policies",
		Long:  `List the built-in policies and any loaded with --policy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newPolicyEngine(cmd.Context())
			if err != nil {
				return err
			}

			policies := eng.ListPolicies()
			if jsonOutput {
				return printJSON(os.Stdout, policies)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSEVERITY\tSOURCE\tDESCRIPTION")
			for _, p := range policies {
				source := p.Source
				if source == "" {
					source = "built-in"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, p.Severity, source, p.Description)
			}
			return tw.Flush()
		},
	}
}
