package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrison/taskpilot/internal/config"
	"github.com/harrison/taskpilot/internal/registry"
	"github.com/harrison/taskpilot/internal/tools"
)

// NewCapabilitiesCommand creates the capabilities command
func NewCapabilitiesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "capabilities [query]",
		Aliases: []string{"caps"},
		Short:   "List the capabilities plans can invoke",
		Long: `List registered capabilities with their parameters.

An optional query filters by name, tool, description or parameter name.
Use --json for the planner-facing catalog.

Examples:
  taskpilot capabilities
  taskpilot capabilities weather
  taskpilot capabilities --json > catalog.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.New()
			if err := tools.RegisterAll(reg, tools.Options{APIs: config.DefaultConfig().APIs}); err != nil {
				return fmt.Errorf("failed to register capabilities: %w", err)
			}

			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			return listCapabilities(cmd.OutOrStdout(), reg, query, asJSON)
		},
	}

	cmd.Flags().Bool("json", false, "Print the catalog as JSON")

	return cmd
}

func listCapabilities(w io.Writer, reg *registry.Registry, query string, asJSON bool) error {
	matched := reg.Search(query)
	names := make(map[string]bool, len(matched))
	for _, d := range matched {
		names[d.Name] = true
	}

	if asJSON {
		catalog := []registry.CapabilityInfo{}
		for _, info := range reg.Catalog() {
			if names[info.Name] {
				catalog = append(catalog, info)
			}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(catalog); err != nil {
			return fmt.Errorf("failed to encode catalog: %w", err)
		}
		return nil
	}

	if len(matched) == 0 {
		fmt.Fprintf(w, "No capabilities match %q.\n", query)
		return nil
	}

	groups := reg.Tools()
	toolNames := make([]string, 0, len(groups))
	for tool := range groups {
		toolNames = append(toolNames, tool)
	}
	sort.Strings(toolNames)

	for _, tool := range toolNames {
		var descs []*registry.Descriptor
		for _, name := range groups[tool] {
			if names[name] {
				d, _ := reg.Resolve(name)
				descs = append(descs, d)
			}
		}
		if len(descs) == 0 {
			continue
		}

		fmt.Fprintf(w, "%s:\n", tool)
		for _, d := range descs {
			fmt.Fprintf(w, "  %s [%s]\n", d.Name, d.TimeoutClass)
			if d.Description != "" {
				fmt.Fprintf(w, "      %s\n", d.Description)
			}
			for _, p := range d.Schema.Parameters {
				fmt.Fprintf(w, "      - %s\n", describeParameter(p))
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "%d capability(ies)\n", len(matched))
	return nil
}

// describeParameter renders e.g. `units (string, default "metric"): Units system [metric|imperial|kelvin]`.
func describeParameter(p registry.Parameter) string {
	var attrs []string
	attrs = append(attrs, string(p.Type))
	if p.Required {
		attrs = append(attrs, "required")
	}
	if p.Default != nil {
		attrs = append(attrs, fmt.Sprintf("default %s", formatValue(p.Default)))
	}

	s := fmt.Sprintf("%s (%s)", p.Name, strings.Join(attrs, ", "))
	if p.Description != "" {
		s += ": " + p.Description
	}
	if len(p.Enum) > 0 {
		vals := make([]string, len(p.Enum))
		for i, v := range p.Enum {
			vals[i] = fmt.Sprint(v)
		}
		s += " [" + strings.Join(vals, "|") + "]"
	}
	return s
}

func formatValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
