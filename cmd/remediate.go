package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/cisaudit/pkg/catalog"
)

var (
	remediateVars      []string
	remediateTemplates string
)

var remediateCmd = &cobra.Command{
	Use:   "remediate [control-id]",
	Short: "Print the remediation plan for a control",
	Long: `Renders the fix, validation and rollback commands for a failing control.
Without a control id, lists the available templates.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.RemediationDir
		if remediateTemplates != "" {
			dir = remediateTemplates
		}
		re, err := catalog.LoadRemediation(dir)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(args) == 0 {
			for _, line := range re.ListTemplates() {
				fmt.Fprintln(out, line)
			}
			return nil
		}

		vars := make(map[string]string, len(remediateVars))
		for _, kv := range remediateVars {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return fmt.Errorf("invalid --var %q, want key=value", kv)
			}
			vars[k] = v
		}
		plan, err := re.GeneratePlan(args[0], vars)
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, plan)
		return err
	},
}

func init() {
	remediateCmd.Flags().StringArrayVar(&remediateVars, "var", nil, "Template variable as key=value (repeatable)")
	remediateCmd.Flags().StringVar(&remediateTemplates, "templates", "", "Directory of extra remediation templates")
	rootCmd.AddCommand(remediateCmd)
}
