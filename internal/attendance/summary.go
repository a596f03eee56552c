package attendance

import (
	"math"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// Summary holds aggregate statistics over a set of records.
type Summary struct {
	Registrants    int           `json:"registrants"`
	Days           int           `json:"days"`
	Records        int           `json:"records"`
	Present        int           `json:"present"`
	Absent         int           `json:"absent"`
	AttendanceRate float64       `json:"attendance_rate"` // percent of records marked Present
	TotalDuration  time.Duration `json:"total_duration"`
}

// Summarize computes statistics over records. Registrants and days count
// distinct values present in records.
func Summarize(records []database.PunchRecord) Summary {
	names := make(map[string]struct{})
	days := make(map[string]struct{})
	var s Summary

	for i := range records {
		r := &records[i]
		names[r.Name] = struct{}{}
		days[r.DateKey()] = struct{}{}
		if r.Status == database.StatusPresent {
			s.Present++
		} else {
			s.Absent++
		}
		s.TotalDuration += r.TotalDuration
	}

	s.Registrants = len(names)
	s.Days = len(days)
	s.Records = len(records)
	if s.Records > 0 {
		rate := float64(s.Present) / float64(s.Records) * 100
		s.AttendanceRate = math.Round(rate*10) / 10
	}
	return s
}
