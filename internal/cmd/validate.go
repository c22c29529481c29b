package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/harrison/taskpilot/internal/config"
	"github.com/harrison/taskpilot/internal/executor"
	"github.com/harrison/taskpilot/internal/models"
	"github.com/harrison/taskpilot/internal/registry"
	"github.com/harrison/taskpilot/internal/tools"
)

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plan-file>",
		Short: "Validate a plan file without executing it",
		Long: `Parse and validate a plan file, checking for:
  - Document shape (goal, steps, ids, capabilities)
  - Duplicate step ids
  - Dependencies and references that name unknown steps
  - Circular dependencies
  - Capabilities missing from the registry
  - Literal parameters that violate a capability's schema

Parameters that reference other steps' outputs are checked at run time.

Exit code: 0 if valid, 1 if errors found`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatName, _ := cmd.Flags().GetString("format")
			reg := registry.New()
			if err := tools.RegisterAll(reg, tools.Options{APIs: config.DefaultConfig().APIs}); err != nil {
				return fmt.Errorf("failed to register capabilities: %w", err)
			}
			return validatePlanFileWithOutput(args[0], formatName, reg, cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}

	cmd.Flags().String("format", "", "Plan format: json, yaml or markdown (default: from file extension)")

	return cmd
}

// validatePlanFileWithOutput validates a plan file against reg, reporting to output.
func validatePlanFileWithOutput(path, formatName string, reg *registry.Registry, output io.Writer) error {
	plan, err := loadPlan(path, formatName)
	if err != nil {
		fmt.Fprintf(output, "✗ %v\n", err)
		return err
	}
	return validatePlan(plan, reg, output)
}

// validatePlan reports structural, graph and capability problems in plan.
func validatePlan(plan *models.Plan, reg *registry.Registry, output io.Writer) error {
	if err := plan.Validate(); err != nil {
		fmt.Fprintf(output, "✗ %v\n", err)
		return fmt.Errorf("invalid plan: %w", err)
	}

	order, err := executor.ResolveOrder(plan)
	if err != nil {
		if executor.IsCycleError(err) {
			fmt.Fprintf(output, "✗ Circular dependency detected: %v\n", err)
		} else {
			fmt.Fprintf(output, "✗ %v\n", err)
		}
		return fmt.Errorf("invalid plan: %w", err)
	}
	fmt.Fprintf(output, "✓ No circular dependencies detected\n")

	var problems []string
	for _, id := range order {
		step, _ := plan.Step(id)
		desc, err := reg.Resolve(step.Capability)
		if err != nil {
			problems = append(problems, fmt.Sprintf("step %s: %v", step.ID, err))
			continue
		}
		if len(step.References()) > 0 {
			continue
		}
		if _, err := desc.Validate(step.Parameters); err != nil {
			problems = append(problems, fmt.Sprintf("step %s: %v", step.ID, err))
		}
	}

	if len(problems) > 0 {
		fmt.Fprintf(output, "✗ Found %d problem(s):\n", len(problems))
		for _, p := range problems {
			fmt.Fprintf(output, "  - %s\n", p)
		}
		return fmt.Errorf("plan has %d problem(s)", len(problems))
	}

	fmt.Fprintf(output, "✓ Plan is valid: %d step(s)\n", len(plan.Steps))
	fmt.Fprintf(output, "\nExecution order:\n")
	for i, id := range order {
		step, _ := plan.Step(id)
		fmt.Fprintf(output, "  %d. %s (%s)\n", i+1, step.ID, step.Capability)
	}
	return nil
}
