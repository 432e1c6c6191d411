package commands

// One scheduler pass from the command line, e.g. from cron

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Run one scheduler pass and exit",
	RunE:  runTrigger,
}

func runTrigger(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.scheduler.RunOnce(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "checked=%d due=%d sent=%d failed=%d\n",
		res.Checked, res.Due, res.Sent, res.Failed)
	return nil
}
