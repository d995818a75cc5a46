package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/warp/adherence-engine/compliance"
)

func newSweepCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reconcile every duplicated day once and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			log := cfg.Logger()

			store, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			cache, closeCache := newCache(cmd.Context(), cfg, log)
			defer closeCache()

			sweeper := compliance.NewSweeper(store, nil, cache, log)
			report, err := sweeper.Sweep(cmd.Context())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}
