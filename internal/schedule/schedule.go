// Package schedule computes the next trigger instant for a job's schedule
// descriptor. All math is in UTC; timezone adjustment happens when the
// descriptor is authored.
package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"prompt-job-runner/internal/domain"
	"prompt-job-runner/internal/domain/model"
)

// Spec is a parsed schedule descriptor.
type Spec struct {
	Type      model.ScheduleType
	Time      string // "HH:mm" for daily/weekly
	DayOfWeek int    // 0=Sunday..6=Saturday; -1 when unset
	Cron      string // standard 5-field expression
}

// FromJob builds the descriptor from a job row.
func FromJob(job *model.Job) Spec {
	return Spec{
		Type:      job.ScheduleType,
		Time:      job.ScheduleTime,
		DayOfWeek: job.ScheduleDayOfWeek,
		Cron:      job.ScheduleCron,
	}
}

var timeFormat = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// NextRunAt returns the next trigger instant strictly after ref. It is pure
// and deterministic; a malformed descriptor yields *domain.InvalidScheduleError.
func NextRunAt(spec Spec, ref time.Time) (time.Time, error) {
	ref = ref.UTC()

	switch spec.Type {
	case model.ScheduleDaily:
		hour, minute, err := parseHHMM(spec.Time)
		if err != nil {
			return time.Time{}, err
		}
		next := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, time.UTC)
		if !next.After(ref) {
			next = next.Add(24 * time.Hour)
		}
		return next, nil

	case model.ScheduleWeekly:
		hour, minute, err := parseHHMM(spec.Time)
		if err != nil {
			return time.Time{}, err
		}
		if spec.DayOfWeek < 0 || spec.DayOfWeek > 6 {
			return time.Time{}, &domain.InvalidScheduleError{Reason: "day of week must be 0-6 for weekly schedule"}
		}
		delta := (spec.DayOfWeek - int(ref.Weekday()) + 7) % 7
		next := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, time.UTC).AddDate(0, 0, delta)
		if !next.After(ref) {
			next = next.AddDate(0, 0, 7)
		}
		return next, nil

	case model.ScheduleCron:
		if spec.Cron == "" {
			return time.Time{}, &domain.InvalidScheduleError{Reason: "cron expression is required"}
		}
		sched, err := cron.ParseStandard(spec.Cron)
		if err != nil {
			return time.Time{}, &domain.InvalidScheduleError{Reason: fmt.Sprintf("cron: %v", err)}
		}
		return sched.Next(ref), nil

	default:
		return time.Time{}, &domain.InvalidScheduleError{Reason: fmt.Sprintf("unknown schedule type %q", spec.Type)}
	}
}

func parseHHMM(raw string) (int, int, error) {
	m := timeFormat.FindStringSubmatch(raw)
	if m == nil {
		return 0, 0, &domain.InvalidScheduleError{Reason: fmt.Sprintf("time %q must be HH:mm", raw)}
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	return hour, minute, nil
}
