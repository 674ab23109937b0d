package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/noah-isme/promo-pricing/internal/config"
	"github.com/noah-isme/promo-pricing/internal/quote"
)

func newRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the effective pricing rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Pricing.Validate(); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(quote.NewRulesView(cfg.Pricing, cfg.CurrencyCode))
		},
	}
}
