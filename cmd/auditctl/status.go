package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sevigo/audit-scanner/internal/config"
	"github.com/sevigo/audit-scanner/internal/db"
	"github.com/sevigo/audit-scanner/internal/storage"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current scan status of every auto-scan repository",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		dbConn, cleanup, err := db.NewDatabase(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer cleanup()

		store := storage.NewStore(dbConn.DB)
		repos, err := store.GetAutoScanRepositories(ctx)
		if err != nil {
			return fmt.Errorf("failed to retrieve repositories: %w", err)
		}

		if statusJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(repos)
		}

		if len(repos) == 0 {
			fmt.Println("No auto-scan repositories configured.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, color.New(color.Bold).Sprint("REPOSITORY\tFILES PROCESSED\tCOST ACCUMULATED\tLAST SCAN CHECK"))
		for _, repo := range repos {
			lastCheck := color.RedString("never")
			if repo.LastScanCheck > 0 {
				lastCheck = color.GreenString(time.Unix(repo.LastScanCheck, 0).Format(time.RFC822))
			}
			fmt.Fprintf(w, "%s\t%d\t$%.4f\t%s\n",
				repo.Name, repo.ScanFilesProcessed, repo.ScanCostAccumulated, lastCheck)
		}
		return w.Flush()
	},
}

func init() { //nolint:gochecknoinits // cobra command registration
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")
}
