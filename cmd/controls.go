package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/user/cisaudit/pkg/catalog"
	"github.com/user/cisaudit/pkg/engine"
	"github.com/user/cisaudit/pkg/output"
)

var (
	controlsCatalog string
	controlsFormat  string
)

var controlsCmd = &cobra.Command{
	Use:   "controls",
	Short: "Inspect the control catalog",
}

func loadRegistry() (*engine.Registry, error) {
	path := cfg.Catalog
	if controlsCatalog != "" {
		path = controlsCatalog
	}
	reg, _, err := catalog.Load(path)
	return reg, err
}

var listControlsCmd = &cobra.Command{
	Use:   "list",
	Short: "List every control in the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		if controlsFormat == output.FormatJSON {
			return output.WriteJSON(cmd.OutOrStdout(), reg.All())
		}
		_, err = io.WriteString(cmd.OutOrStdout(), output.RenderControls(reg.All()))
		return err
	},
}

var showControlCmd = &cobra.Command{
	Use:   "show <control-id>",
	Short: "Show one control with its checks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		c, err := reg.Get(args[0])
		if err != nil {
			return err
		}
		if controlsFormat == output.FormatJSON {
			return output.WriteJSON(cmd.OutOrStdout(), c)
		}
		_, err = io.WriteString(cmd.OutOrStdout(), output.RenderControl(c))
		return err
	},
}

func init() {
	controlsCmd.PersistentFlags().StringVar(&controlsCatalog, "catalog", "", "Control catalog file or directory (default: embedded CIS Docker catalog)")
	controlsCmd.PersistentFlags().StringVarP(&controlsFormat, "format", "f", output.FormatTable, "Output format (table, json)")

	controlsCmd.AddCommand(listControlsCmd)
	controlsCmd.AddCommand(showControlCmd)
	rootCmd.AddCommand(controlsCmd)
}
