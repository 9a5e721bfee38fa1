package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/yanun0323/errors"

	"main/internal/risk"
	"main/pkg/conn"
)

var clearKillCmd = &cobra.Command{
	Use:   "clear-kill-switch",
	Short: "Clear the persisted risk kill switch",
	Long: `Clear-kill-switch resets the durable kill switch flag. Restarts never
clear the flag on their own, so this command is the only way to re-enable
automation after a trip. A running daemon picks the change up on its next
restart.`,
	RunE: runClearKill,
}

func init() {
	rootCmd.AddCommand(clearKillCmd)
}

func runClearKill(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	pg, err := conn.NewPostgres(cfg.Postgres)
	if err != nil {
		return errors.Wrap(err, "connect postgres")
	}
	defer pg.Close()
	if err := pg.Migrate(&risk.DailyAggregate{}); err != nil {
		return errors.Wrap(err, "migrate")
	}

	state := risk.NewState(risk.NewStore(pg.DB()))
	agg, err := state.Restore(ctx, time.Now())
	if err != nil {
		return err
	}
	if !agg.KillSwitch {
		fmt.Println("Kill switch is not active; nothing to clear.")
		return nil
	}

	fmt.Printf("Kill switch is active: %s\n", agg.KillReason)
	if err := state.ClearKillSwitch(ctx); err != nil {
		return err
	}
	fmt.Println("Kill switch cleared.")
	return nil
}
