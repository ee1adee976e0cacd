package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"aicaptain/internal/model"
	"aicaptain/internal/orchestrator"
)

var (
	optFields []string
	optFile   string
	optJSON   bool
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Optimize one route from form fields",
	Long: `Optimize validates the form fields exactly like the dashboard and calls
the optimization service once.

Fields come from a YAML file of key: value pairs (--file) and from
repeated --field key=value flags, flags winning:

  captain optimize --file vessel.yaml --field start_port=wp-1 --field end_port=wp-2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, err := loadFields(optFile, optFields)
		if err != nil {
			return err
		}
		return runOptimize(cmd.Context(), cmd.OutOrStdout(), fields)
	},
}

func init() {
	optimizeCmd.Flags().StringArrayVarP(&optFields, "field", "f", nil, "Form field as key=value (repeatable)")
	optimizeCmd.Flags().StringVar(&optFile, "file", "", "YAML file of form fields")
	optimizeCmd.Flags().BoolVar(&optJSON, "json", false, "Print the route as JSON")
}

// loadFields merges the YAML file and key=value flags into raw form
// fields. YAML scalars keep their literal text.
func loadFields(path string, kvs []string) (map[string]string, error) {
	fields := map[string]string{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var doc yaml.Node
		if err := yaml.Unmarshal(b, &doc); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if len(doc.Content) > 0 {
			m := doc.Content[0]
			if m.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("%s: want a mapping of field: value", path)
			}
			for i := 0; i+1 < len(m.Content); i += 2 {
				k, v := m.Content[i], m.Content[i+1]
				if v.Kind != yaml.ScalarNode {
					return nil, fmt.Errorf("%s: field %s is not a scalar", path, k.Value)
				}
				if v.ShortTag() == "!!null" {
					continue
				}
				fields[k.Value] = v.Value
			}
		}
	}
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --field %q, want key=value", kv)
		}
		fields[strings.TrimSpace(k)] = v
	}
	return fields, nil
}

func runOptimize(ctx context.Context, out io.Writer, fields map[string]string) error {
	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	o := orchestrator.New(d.client, d.loader,
		orchestrator.WithID("cli"),
		orchestrator.WithHistory(d.history),
		orchestrator.WithLogger(logger.Named("orchestrator")))
	o.Init(ctx)

	if err := o.Submit(ctx, fields); err != nil {
		var ve *model.ValidationError
		var apiErr *model.APIError
		switch {
		case errors.As(err, &ve):
			return fmt.Errorf("invalid input: %w", ve)
		case errors.As(err, &apiErr) && apiErr.Unauthorized():
			return fmt.Errorf("%s: run \"captain login\" first", apiErr.Message)
		}
		return err
	}
	route := o.Snapshot().Route
	if optJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(route)
	}
	printRoute(out, *route)
	return nil
}

func printRoute(out io.Writer, r model.OptimizedRoute) {
	m := r.Metrics
	fmt.Fprintf(out, "distance %.1f nm, time %.1f h, fuel %.1f t, cost $%.0f, risk %.2f\n",
		m.DistanceNM, m.TimeHours, m.FuelTons, m.CostUSD, m.RiskScore)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tNAME\tLAT\tLON")
	for i, wp := range r.Waypoints {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.4f\t%.4f\n", i+1, wp.ID, wp.Name, wp.Lat, wp.Lon)
	}
	_ = tw.Flush()
	for _, b := range r.Blockages {
		fmt.Fprintf(out, "blockage %s (%s): %s\n", b.Chokepoint, b.RiskLevel, b.Recommendation)
	}
	if t, ok := r.GeneratedTime(); ok {
		fmt.Fprintf(out, "generated %s\n", t.Format("2006-01-02 15:04:05"))
	}
}
