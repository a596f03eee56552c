package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/notify"
)

var punchCmd = &cobra.Command{
	Use:   "punch NAME",
	Short: "Record a punch for a registrant",
	Long: `Record one punch as if the registrant had been recognized.

The first punch of a free slot opens it, the next one closes it. A new slot
can only be opened once the minimum break since the last punch out has passed.

Examples:
  # Punch now
  face-attendance punch "Asha"

  # Punch at a given time today
  face-attendance punch "Asha" --at 13:05
  face-attendance punch "Asha" --at "01:20 PM"

  # Punch on another day
  face-attendance punch "Asha" --at "2026-01-05 17:00:00"`,
	Args: cobra.ExactArgs(1),
	RunE: runPunch,
}

func init() {
	rootCmd.AddCommand(punchCmd)

	punchCmd.Flags().String("at", "", "Punch time (RFC 3339, YYYY-MM-DD HH:MM[:SS], HH:MM[:SS] or HH:MM AM/PM)")
	punchCmd.Flags().Bool("silent", false, "Do not ring the terminal bell")
	punchCmd.Flags().Bool("json", false, "Output the updated record as JSON")
}

// describePunchError turns a rejection into an operator-facing message.
func describePunchError(err error) string {
	var pe *attendance.PunchError
	if !errors.As(err, &pe) {
		return err.Error()
	}
	switch pe.Kind {
	case attendance.KindUnregisteredIdentity:
		return fmt.Sprintf("%s is not registered", pe.Identity)
	case attendance.KindBreakTooShort:
		return fmt.Sprintf("%s must wait %s before starting slot %d",
			pe.Identity, pe.RetryAfter(), pe.Slot)
	case attendance.KindSessionLimitReached:
		return fmt.Sprintf("%s has used all slots for %s", pe.Identity, pe.Date.Format("2006-01-02"))
	case attendance.KindPersistenceUnavailable:
		return fmt.Sprintf("attendance storage unavailable: %v", pe.Err)
	default:
		return pe.Error()
	}
}

func runPunch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name := strings.TrimSpace(args[0])
	at := mustGetString(cmd, "at")
	jsonOutput := mustGetBool(cmd, "json")

	var notifiers []notify.Notifier
	if !jsonOutput {
		notifiers = append(notifiers, notify.NewBell(os.Stdout, mustGetBool(cmd, "silent")))
	}

	a, err := openApp(ctx, notifiers...)
	if err != nil {
		return err
	}
	defer a.Close()

	when := a.service.Now()
	if at != "" {
		if when, err = attendance.ParseTimestamp(at, when, a.service.Location()); err != nil {
			return err
		}
	}

	res, err := a.service.ApplyPunch(ctx, name, when)
	if err != nil {
		return errors.New(describePunchError(err))
	}

	if jsonOutput {
		return outputJSON(newRecordView(&res.Record, false))
	}
	if res.Transition.Direction == attendance.PunchOut {
		fmt.Printf("Slot %d lasted %s\n", res.Transition.Slot, attendance.FormatDuration(res.Transition.Duration))
	}
	return nil
}
