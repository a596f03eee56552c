package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/database"
)

var dayCmd = &cobra.Command{
	Use:   "day",
	Short: "Daily ledger maintenance",
}

var dayInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create today's Absent record for every registrant",
	Long: `Create an Absent record for today for every registrant that has none.
Safe to run repeatedly; records that already exist are left untouched.`,
	Args: cobra.NoArgs,
	RunE: runDayInit,
}

func init() {
	rootCmd.AddCommand(dayCmd)
	dayCmd.AddCommand(dayInitCmd)

	dayInitCmd.Flags().Int("attempts", 0, "Attempts before giving up (0 = default)")
}

func runDayInit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	attempts := mustGetInt(cmd, "attempts")
	if attempts < 0 {
		return errors.New("--attempts must not be negative")
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	created, err := a.service.EnsureTodayWithRetry(ctx, uint(attempts))
	if err != nil {
		return fmt.Errorf("failed to initialize today's records: %w", err)
	}

	today := database.DayOf(a.service.Now(), a.service.Location())
	fmt.Printf("Created %d absent records for %s\n", created, today.Format(database.DateLayout))
	return nil
}
