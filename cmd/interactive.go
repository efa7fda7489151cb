package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/user/cisaudit/pkg/adk"
	"github.com/user/cisaudit/pkg/catalog"
	"github.com/user/cisaudit/pkg/engine"
	"github.com/user/cisaudit/pkg/wrappers"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Start the interactive agent session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zerolog.Ctx(ctx)

		providerName := cfg.SelectedProvider
		if providerName == "" {
			providerName = "gemini"
		}

		apiKey := cfg.GetAPIKey(providerName)
		if apiKey == "" && providerName == "gemini" {
			apiKey = os.Getenv("GOOGLE_API_KEY")
		}
		if apiKey == "" {
			return fmt.Errorf("API key not found, run 'cisaudit config setup' to configure your keys")
		}

		out := cmd.OutOrStdout()
		modelName := cfg.SelectedModel
		fmt.Fprintf(out, "Connecting to %s (Model: %s)...\n", providerName, modelName)

		provider, err := adk.NewProvider(ctx, providerName, apiKey, modelName)
		if err != nil {
			return fmt.Errorf("error creating AI provider: %w", err)
		}
		if closer, ok := provider.(interface{ Close() }); ok {
			defer closer.Close()
		}

		reg, _, err := catalog.Load(cfg.Catalog)
		if err != nil {
			return err
		}
		eng, err := newEngine(cfg, nil)
		if err != nil {
			return err
		}
		remediationEng, err := catalog.LoadRemediation(cfg.RemediationDir)
		if err != nil {
			return err
		}

		session := &wrappers.Session{Registry: reg, Evaluator: eng}
		st, err := openStore(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("report history disabled")
		} else {
			defer st.Close()
			session.OnReport = func(ctx context.Context, r engine.Report) {
				rec, err := st.SaveReport(ctx, r)
				if err != nil {
					log.Warn().Err(err).Msg("failed to store report")
					return
				}
				log.Debug().Str("id", rec.ID).Msg("report stored")
			}
		}

		agent := adk.NewAgent(provider)
		agent.RegisterTool(&wrappers.ComplianceWrapper{Session: session})
		agent.RegisterTool(&wrappers.DescribeControlWrapper{Registry: reg})
		agent.RegisterTool(&wrappers.SaveSnapshotWrapper{Session: session})
		agent.RegisterTool(&wrappers.DiffSnapshotWrapper{Session: session})
		agent.RegisterTool(&wrappers.RemediationWrapper{Engine: remediationEng})
		agent.SetSystemPrompt(adk.GetSystemPrompt())

		scanner := bufio.NewScanner(cmd.InOrStdin())
		fmt.Fprintln(out, "\n---------------------------------------------------------")
		fmt.Fprintln(out, "cisaudit agent initialized. Ready for commands.")
		fmt.Fprintln(out, "Example: 'Run the CIS Docker audit'")
		fmt.Fprintln(out, "Example: 'How do I fix the healthcheck control?'")
		fmt.Fprintln(out, "Type 'quit' or 'exit' to stop.")
		fmt.Fprintln(out, "---------------------------------------------------------")

		for {
			fmt.Fprint(out, "\n> ")
			if !scanner.Scan() {
				break
			}
			input := scanner.Text()
			if input == "quit" || input == "exit" {
				break
			}
			if input == "" {
				continue
			}

			fmt.Fprint(out, "Agent thinking... ")
			resp, err := agent.Chat(ctx, input, func(msg string) {
				fmt.Fprintf(out, "\r\033[K[Progress]: %s\nAgent thinking... ", msg)
			})
			fmt.Fprint(out, "\r\033[K")

			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
			} else {
				fmt.Fprintf(out, "\n[Agent]: %s\n", resp)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
}
