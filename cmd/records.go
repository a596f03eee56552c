package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Show attendance records with summary statistics",
	Long: `List attendance records, newest day first, with totals and attendance rate.

Examples:
  # Everything recorded
  face-attendance records

  # One week, present only, 12-hour clock
  face-attendance records --from 2026-01-05 --to 2026-01-11 --status present --12h

  # One registrant as JSON
  face-attendance records --name "Asha" --json`,
	Args: cobra.NoArgs,
	RunE: runRecords,
}

func init() {
	rootCmd.AddCommand(recordsCmd)

	recordsCmd.Flags().String("from", "", "First day (YYYY-MM-DD)")
	recordsCmd.Flags().String("to", "", "Last day (YYYY-MM-DD)")
	recordsCmd.Flags().String("status", "", "Only Present or Absent records")
	recordsCmd.Flags().String("name", "", "Only records of this registrant")
	recordsCmd.Flags().Bool("today", false, "Only today's records")
	recordsCmd.Flags().Bool("12h", false, "Show times on a 12-hour clock")
	recordsCmd.Flags().Bool("json", false, "Output as JSON")
}

type slotView struct {
	Slot     int    `json:"slot"`
	In       string `json:"in,omitempty"`
	Out      string `json:"out,omitempty"`
	Duration string `json:"duration,omitempty"`
}

type recordView struct {
	Name   string     `json:"name"`
	Date   string     `json:"date"`
	Slots  []slotView `json:"slots"`
	Total  string     `json:"total_hours"`
	Status string     `json:"status"`
}

// newRecordView renders the used slots of a record.
func newRecordView(rec *database.PunchRecord, twelveHour bool) recordView {
	clock := attendance.FormatClock
	if twelveHour {
		clock = attendance.FormatClock12
	}

	v := recordView{
		Name:   rec.Name,
		Date:   rec.DateKey(),
		Total:  attendance.FormatDuration(rec.TotalDuration),
		Status: string(rec.Status),
	}
	for i, s := range rec.Slots {
		if !s.HasIn() {
			break
		}
		sv := slotView{Slot: i + 1, In: clock(s.In)}
		if s.HasOut() {
			sv.Out = clock(s.Out)
			sv.Duration = attendance.FormatDuration(s.Duration)
		}
		v.Slots = append(v.Slots, sv)
	}
	return v
}

// parseStatus accepts a status in any letter case.
func parseStatus(s string) (database.AttendanceStatus, error) {
	if s == "" {
		return "", nil
	}
	for _, st := range []database.AttendanceStatus{database.StatusPresent, database.StatusAbsent} {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q (use Present or Absent)", s)
}

// buildRecordFilter validates the filter flags against loc.
func buildRecordFilter(cmd *cobra.Command, loc *time.Location, now time.Time) (database.RecordFilter, error) {
	var filter database.RecordFilter
	var err error

	if s := mustGetString(cmd, "from"); s != "" {
		if filter.From, err = time.ParseInLocation(database.DateLayout, s, loc); err != nil {
			return filter, fmt.Errorf("invalid --from date %q: %w", s, err)
		}
	}
	if s := mustGetString(cmd, "to"); s != "" {
		if filter.To, err = time.ParseInLocation(database.DateLayout, s, loc); err != nil {
			return filter, fmt.Errorf("invalid --to date %q: %w", s, err)
		}
	}
	if mustGetBool(cmd, "today") {
		if !filter.From.IsZero() || !filter.To.IsZero() {
			return filter, errors.New("--today cannot be combined with --from or --to")
		}
		filter.From = database.DayOf(now, loc)
		filter.To = filter.From
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return filter, errors.New("--to is before --from")
	}
	if filter.Status, err = parseStatus(mustGetString(cmd, "status")); err != nil {
		return filter, err
	}
	filter.Name = strings.TrimSpace(mustGetString(cmd, "name"))
	return filter, nil
}

func runRecords(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	twelveHour := mustGetBool(cmd, "12h")
	jsonOutput := mustGetBool(cmd, "json")

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	filter, err := buildRecordFilter(cmd, a.service.Location(), a.service.Now())
	if err != nil {
		return err
	}

	records, err := a.service.Records(ctx, filter)
	if err != nil {
		return err
	}
	summary := attendance.Summarize(records)

	views := make([]recordView, 0, len(records))
	for i := range records {
		views = append(views, newRecordView(&records[i], twelveHour))
	}

	if jsonOutput {
		return outputJSON(map[string]any{
			"records": views,
			"summary": summary,
		})
	}

	if len(views) == 0 {
		fmt.Println("No attendance records found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tNAME\tSLOTS\tTOTAL\tSTATUS")
	for _, v := range views {
		slots := make([]string, 0, len(v.Slots))
		for _, s := range v.Slots {
			out := s.Out
			if out == "" {
				out = "..."
			}
			slots = append(slots, s.In+"-"+out)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", v.Date, v.Name, strings.Join(slots, ", "), v.Total, v.Status)
	}
	w.Flush()

	fmt.Printf("\nRegistrants: %d  Days: %d  Present: %d  Absent: %d  Attendance rate: %.1f%%  Total time: %s\n",
		summary.Registrants, summary.Days, summary.Present, summary.Absent,
		summary.AttendanceRate, attendance.FormatDuration(summary.TotalDuration))
	return nil
}
