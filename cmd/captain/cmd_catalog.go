package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"aicaptain/internal/buildinfo"
	"aicaptain/internal/orchestrator"
)

var waypointsCmd = &cobra.Command{
	Use:   "waypoints",
	Short: "List the waypoint catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = d.Close() }()

		o := orchestrator.New(d.client, d.loader, orchestrator.WithID("cli"))
		o.Init(cmd.Context())
		c := o.Catalog()
		if c.Len() == 0 {
			return errors.New("waypoint catalog is empty or unavailable")
		}
		out := cmd.OutOrStdout()
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tTYPE\tLAT\tLON\tCAPACITY")
		for _, wp := range c.List() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\t%.4f\t%d\n", wp.ID, wp.Name, wp.PortType, wp.Latitude, wp.Longitude, wp.Capacity)
		}
		_ = tw.Flush()
		if start, end, ok := c.DefaultEndpoints(); ok {
			fmt.Fprintf(out, "default route: %s -> %s\n", start, end)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		info := buildinfo.Info()
		fmt.Fprintf(cmd.OutOrStdout(), "captain %s (commit %s, built %s, %s)\n",
			info["version"], info["commit"], info["builtAt"], info["goVersion"])
	},
}
