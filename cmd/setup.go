package cmd

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/cisaudit/pkg/adk"
	"github.com/user/cisaudit/pkg/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	RunE: func(cmd *cobra.Command, args []string) error {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Welcome to the cisaudit Setup Wizard")
		fmt.Fprintln(out, "------------------------------------")

		// 1. Select Provider
		fmt.Fprintln(out, "Step 1: Choose your AI Provider")
		for i, p := range adk.Providers {
			fmt.Fprintf(out, "%d. %s\n", i+1, p)
		}
		fmt.Fprint(out, "Enter number or name > ")
		scanner.Scan()
		choice := strings.ToLower(strings.TrimSpace(scanner.Text()))

		var provider string
		for i, p := range adk.Providers {
			if choice == p || choice == strconv.Itoa(i+1) {
				provider = p
			}
		}
		if provider == "" {
			return fmt.Errorf("invalid provider choice %q", choice)
		}

		// 2. Enter API Key
		fmt.Fprintf(out, "\nStep 2: Enter API Key for %s\n", provider)
		fmt.Fprint(out, "> ")
		scanner.Scan()
		apiKey := strings.TrimSpace(scanner.Text())
		if apiKey == "" {
			return fmt.Errorf("API key cannot be empty")
		}

		// 3. Fetch Models
		fmt.Fprintln(out, "\nStep 3: Validating key and fetching available models...")
		ctx := cmd.Context()
		tempProvider, err := adk.NewProvider(ctx, provider, apiKey, "")
		if err != nil {
			return fmt.Errorf("error initializing provider: %w", err)
		}
		if closer, ok := tempProvider.(interface{ Close() }); ok {
			defer closer.Close()
		}

		models, err := tempProvider.ListModels(ctx)
		var selectedModel string

		if err != nil || len(models) == 0 {
			fmt.Fprintf(out, "Warning: Could not fetch models from API: %v\n", err)
			fmt.Fprintln(out, "Please enter model name manually (e.g., 'gemini-1.5-flash'):")
			fmt.Fprint(out, "> ")
			scanner.Scan()
			selectedModel = strings.TrimSpace(scanner.Text())
		} else {
			fmt.Fprintf(out, "Successfully retrieved %d models.\n", len(models))
			for i, m := range models {
				fmt.Fprintf(out, "%d. %s\n", i+1, m)
			}
			fmt.Fprint(out, "Select Model (number) > ")
			scanner.Scan()
			selIdx, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
			if err != nil || selIdx < 1 || selIdx > len(models) {
				fmt.Fprintln(out, "Invalid selection. Using first available model.")
				selectedModel = models[0]
			} else {
				selectedModel = models[selIdx-1]
			}
		}

		// 4. Save Configuration
		fmt.Fprintln(out, "\nStep 4: Saving Configuration...")
		cfg.SelectedProvider = provider
		cfg.SelectedModel = selectedModel
		cfg.SetAPIKey(provider, apiKey)

		if err := config.SaveConfig(cfgFile, cfg); err != nil {
			return fmt.Errorf("error saving config: %w", err)
		}

		fmt.Fprintln(out, "------------------------------------")
		fmt.Fprintln(out, "Setup Complete!")
		fmt.Fprintf(out, "Provider: %s\n", provider)
		fmt.Fprintf(out, "Model:    %s\n", selectedModel)
		fmt.Fprintln(out, "You can now run 'cisaudit interactive'")
		return nil
	},
}

func init() {
	configCmd.AddCommand(setupCmd)
}
