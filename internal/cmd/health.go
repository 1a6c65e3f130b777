package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/goethite/gostint-tui/internal/tui"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show gostint health and the vault it uses",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	client := tui.NewGostintClient(cfg.Gostint.URL, tui.GostintOptions{Timeout: cfg.Gostint.Timeout})

	health, err := client.Health(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	keys := make([]string, 0, len(health))
	for k := range health {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(out, "%s: %s\n", k, health[k])
	}

	info, err := client.VaultInfo(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "vault: %s\n", info.Preferred())
	return nil
}
