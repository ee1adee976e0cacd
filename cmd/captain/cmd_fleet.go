package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"aicaptain/internal/model"
	"aicaptain/internal/transport"
)

var (
	altCount     int
	fcDays       int
	fcArrival    string
	fcVesselType string
	posAt        string
	voyFields    []string
	voyFile      string
)

// withClient runs fn against the configured optimization service.
func withClient(ctx context.Context, fn func(c *transport.Client) error) error {
	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	return fn(d.client)
}

func printJSON(out io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n", b)
	return err
}

var alternativesCmd = &cobra.Command{
	Use:   "alternatives START END",
	Short: "Compare alternative routes between two ports",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(c *transport.Client) error {
			alts, err := c.Alternatives(cmd.Context(), args[0], args[1], altCount)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTRATEGY\tMETRICS")
			for _, a := range alts {
				keys := make([]string, 0, len(a.Metrics))
				for k := range a.Metrics {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				parts := make([]string, len(keys))
				for i, k := range keys {
					parts[i] = fmt.Sprintf("%s=%g", k, a.Metrics[k])
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\n", a.ID, a.Strategy, strings.Join(parts, " "))
			}
			return tw.Flush()
		})
	},
}

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Show the status of every tracked voyage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(c *transport.Client) error {
			raw, err := c.FleetStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		})
	},
}

var deviationsCmd = &cobra.Command{
	Use:   "deviations MMSI",
	Short: "Show route deviations reported for a vessel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(c *transport.Client) error {
			raw, err := c.VesselDeviations(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		})
	},
}

var forecastCmd = &cobra.Command{
	Use:   "forecast PORT",
	Short: "Forecast port congestion",
	Long: `Forecast prints the daily congestion outlook of a port. With --arrival
it forecasts congestion for a single arrival date instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(c *transport.Client) error {
			var raw json.RawMessage
			var err error
			if fcArrival != "" {
				raw, err = c.ForecastCongestion(cmd.Context(), model.CongestionForecastRequest{
					PortID:      args[0],
					ArrivalDate: fcArrival,
					VesselType:  fcVesselType,
				})
			} else {
				raw, err = c.PortForecast(cmd.Context(), args[0], fcDays)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		})
	},
}

var voyageCmd = &cobra.Command{
	Use:   "voyage",
	Short: "Register a voyage for deviation tracking",
	Long: `Voyage registers the vessel and its start and end ports with the
service. It takes the same fields as optimize and validates them the same
way.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, err := loadFields(voyFile, voyFields)
		if err != nil {
			return err
		}
		req, err := model.BuildRequest(fields)
		if err != nil {
			return fmt.Errorf("invalid input: %w", err)
		}
		return withClient(cmd.Context(), func(c *transport.Client) error {
			out, err := c.RegisterVoyage(cmd.Context(), model.VoyageRegistration{
				Vessel:    req.Vessel,
				StartPort: req.StartPortID,
				EndPort:   req.EndPortID,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		})
	},
}

var positionCmd = &cobra.Command{
	Use:   "position MMSI LAT LON",
	Short: "Report a vessel position",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		upd, err := model.BuildPositionUpdate(map[string]string{
			model.FieldMMSI:      args[0],
			model.FieldLatitude:  args[1],
			model.FieldLongitude: args[2],
			model.FieldTimestamp: posAt,
		})
		if err != nil {
			return fmt.Errorf("invalid input: %w", err)
		}
		if upd.Timestamp == "" {
			upd.Timestamp = time.Now().UTC().Format(time.RFC3339)
		}
		return withClient(cmd.Context(), func(c *transport.Client) error {
			out, err := c.UpdateVesselPosition(cmd.Context(), upd)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		})
	},
}

func init() {
	alternativesCmd.Flags().IntVarP(&altCount, "count", "n", 3, "Number of alternatives")
	forecastCmd.Flags().IntVar(&fcDays, "days", 7, "Days to forecast")
	forecastCmd.Flags().StringVar(&fcArrival, "arrival", "", "Arrival date (YYYY-MM-DD) for a single-arrival forecast")
	forecastCmd.Flags().StringVar(&fcVesselType, "vessel-type", "", "Vessel type for --arrival")
	positionCmd.Flags().StringVar(&posAt, "at", "", "Observation time, RFC 3339 (default now)")
	voyageCmd.Flags().StringArrayVarP(&voyFields, "field", "f", nil, "Form field as key=value (repeatable)")
	voyageCmd.Flags().StringVar(&voyFile, "file", "", "YAML file of form fields")
}
