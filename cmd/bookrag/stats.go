package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bookrag/internal/bootstrap"
)

func statsCMD() *cobra.Command {
	var subject string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show vector counts per namespace of a subject",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *bootstrap.App) error {
				stats, err := a.Catalog.Stats(cmd.Context(), subject)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(stats) == 0 {
					fmt.Fprintf(out, "%s: no vectors\n", subject)
					return nil
				}
				for _, s := range stats {
					ns := s.Namespace
					if ns == "" {
						ns = "(default)"
					}
					fmt.Fprintf(out, "%s\t%d\n", ns, s.Vectors)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "subject index")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
