package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pipelet/pipelet/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

const starterWorkflow = `name: Build and deploy container app

on:
  push:
    branches: [main]

jobs:
  build-and-deploy:
    runs-on: ubuntu-latest
    steps:
      - name: Checkout
        uses: actions/checkout@v4

      - name: Log in to Azure
        uses: azure/login@v2
        with:
          credentials: ${{ secrets.AZURE_CREDENTIALS }}

      - name: Build and deploy
        uses: azure/container-apps-deploy-action@v2
        with:
          appSourcePath: ${{ github.workspace }}/src
          acrName: cs553cs4nora.azurecr.io
          containerAppName: cs553-cs4-nora
          resourceGroup: cs553_cs4_nora
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config and deploy workflow",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", cfgPath)
		} else {
			fmt.Printf("kept %s\n", cfgPath)
		}

		if err := os.MkdirAll(cfg.Workflows.Dir, 0o755); err != nil {
			return err
		}

		wfPath := filepath.Join(cfg.Workflows.Dir, "deploy.yml")
		if _, err := os.Stat(wfPath); os.IsNotExist(err) {
			if err := os.WriteFile(wfPath, []byte(starterWorkflow), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", wfPath)
		} else {
			fmt.Printf("kept %s\n", wfPath)
		}

		fmt.Println("next: pipelet secret set AZURE_CREDENTIALS -")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
