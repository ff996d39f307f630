package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/SkyZonDev/scrappex/internal/auth"
	"github.com/SkyZonDev/scrappex/internal/config"
	"github.com/SkyZonDev/scrappex/internal/probe"
)

func newProbeCommand() *cobra.Command {
	var (
		n      int
		path   string
		target string
		output string
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Compare cold and warm request latency against the shop",
		Long: `Probe sends sequential GETs through the same pooled client the races use and
reports cold (new connection) and warm (reused connection) latency.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg := config.FromEnv()
			if target == "" {
				if cfg.Shop.BaseURL == "" {
					return errors.New("set BASE_URL or pass --url")
				}
				target = strings.TrimRight(cfg.Shop.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
			}
			if _, err := url.ParseRequestURI(target); err != nil {
				return fmt.Errorf("invalid url %q: %w", target, err)
			}

			client, err := auth.NewHTTPClient(cfg.Pool)
			if err != nil {
				return err
			}
			defer client.CloseIdleConnections()

			rep, err := probe.Run(cmd.Context(), client, target, n)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			fmt.Fprintf(out, "%s\n  cold: %s\n  warm: %s\n  failed: %d\n", rep.URL, rep.Cold, rep.Warm, rep.Failed)
			return nil
		},
	}

	cmd.Flags().IntVarP(&n, "count", "n", 10, "Number of requests")
	cmd.Flags().StringVar(&path, "path", "/", "Path under BASE_URL")
	cmd.Flags().StringVar(&target, "url", "", "Absolute URL; overrides BASE_URL and --path")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text or json")

	return cmd
}
