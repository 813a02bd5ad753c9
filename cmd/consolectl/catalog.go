package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hieuvqhe/SEP490-G163-sub001/internal/catalog"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the permission catalog",
	}
	var resource string
	list := &cobra.Command{
		Use:   "list",
		Short: "List permission groups and codes",
		Example: `  consolectl catalog list
  consolectl catalog list --resource BOOKING`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Default()
			if err != nil {
				return err
			}
			groups := cat.Groups()
			if resource != "" {
				g, err := cat.Group(resource)
				if err != nil {
					return err
				}
				groups = []catalog.Group{g}
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "GROUP\tCODE\tACTION\tNAME")
			for _, g := range groups {
				for _, p := range g.Permissions {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", g.ResourceType, p.Code, p.ActionType, p.Name)
				}
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&resource, "resource", "", "Only list one resource type")
	cmd.AddCommand(list)
	return cmd
}
