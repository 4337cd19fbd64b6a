//go:build !integration

package schedule_test

import (
	"errors"
	"testing"
	"time"

	"prompt-job-runner/internal/domain"
	"prompt-job-runner/internal/domain/model"
	"prompt-job-runner/internal/schedule"
)

func mustParse(t *testing.T, v string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		t.Fatalf("parse %q: %v", v, err)
	}
	return ts
}

func TestNextRunAtDaily(t *testing.T) {
	cases := []struct {
		name string
		time string
		ref  string
		want string
	}{
		{"later today", "15:30", "2026-01-01T10:00:00Z", "2026-01-01T15:30:00Z"},
		{"already passed rolls to tomorrow", "09:00", "2026-01-01T10:00:00Z", "2026-01-02T09:00:00Z"},
		{"exact match is not strictly after", "10:00", "2026-01-01T10:00:00Z", "2026-01-02T10:00:00Z"},
		{"midnight", "00:00", "2026-01-01T00:00:01Z", "2026-01-02T00:00:00Z"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := schedule.NextRunAt(schedule.Spec{Type: model.ScheduleDaily, Time: tc.time}, mustParse(t, tc.ref))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if want := mustParse(t, tc.want); !got.Equal(want) {
				t.Fatalf("got %v, want %v", got, want)
			}
		})
	}
}

func TestNextRunAtWeekly(t *testing.T) {
	// 2026-01-01 is a Thursday (weekday 4).
	cases := []struct {
		name string
		dow  int
		time string
		ref  string
		want string
	}{
		{"same day exact instant rolls a week", 4, "00:00", "2026-01-01T00:00:00Z", "2026-01-08T00:00:00Z"},
		{"same day later time", 4, "18:00", "2026-01-01T12:00:00Z", "2026-01-01T18:00:00Z"},
		{"earlier weekday wraps forward", 1, "09:00", "2026-01-01T12:00:00Z", "2026-01-05T09:00:00Z"},
		{"sunday", 0, "06:30", "2026-01-01T12:00:00Z", "2026-01-04T06:30:00Z"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := schedule.Spec{Type: model.ScheduleWeekly, Time: tc.time, DayOfWeek: tc.dow}
			got, err := schedule.NextRunAt(spec, mustParse(t, tc.ref))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if want := mustParse(t, tc.want); !got.Equal(want) {
				t.Fatalf("got %v, want %v", got, want)
			}
		})
	}
}

func TestNextRunAtCron(t *testing.T) {
	spec := schedule.Spec{Type: model.ScheduleCron, Cron: "*/15 * * * *"}
	got, err := schedule.NextRunAt(spec, mustParse(t, "2026-01-01T10:07:00Z"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := mustParse(t, "2026-01-01T10:15:00Z"); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNextRunAtNonUTCRef(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	ref := time.Date(2026, 1, 1, 13, 0, 0, 0, loc) // 10:00 UTC
	got, err := schedule.NextRunAt(schedule.Spec{Type: model.ScheduleDaily, Time: "11:00"}, ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := mustParse(t, "2026-01-01T11:00:00Z"); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNextRunAtInvalid(t *testing.T) {
	ref := mustParse(t, "2026-01-01T00:00:00Z")
	cases := []struct {
		name string
		spec schedule.Spec
	}{
		{"bad hour", schedule.Spec{Type: model.ScheduleDaily, Time: "24:00"}},
		{"bad minute", schedule.Spec{Type: model.ScheduleDaily, Time: "12:60"}},
		{"not a time", schedule.Spec{Type: model.ScheduleDaily, Time: "noon"}},
		{"single digit hour", schedule.Spec{Type: model.ScheduleDaily, Time: "9:30"}},
		{"weekly day out of range", schedule.Spec{Type: model.ScheduleWeekly, Time: "09:00", DayOfWeek: 7}},
		{"weekly day unset", schedule.Spec{Type: model.ScheduleWeekly, Time: "09:00", DayOfWeek: -1}},
		{"empty cron", schedule.Spec{Type: model.ScheduleCron}},
		{"malformed cron", schedule.Spec{Type: model.ScheduleCron, Cron: "61 * * * *"}},
		{"unknown type", schedule.Spec{Type: "hourly"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := schedule.NextRunAt(tc.spec, ref)
			var ise *domain.InvalidScheduleError
			if !errors.As(err, &ise) {
				t.Fatalf("want InvalidScheduleError, got %v", err)
			}
		})
	}
}

func TestFromJob(t *testing.T) {
	job := &model.Job{
		ScheduleType:      model.ScheduleWeekly,
		ScheduleTime:      "07:45",
		ScheduleDayOfWeek: 2,
		ScheduleCron:      "",
	}
	spec := schedule.FromJob(job)
	if spec.Type != model.ScheduleWeekly || spec.Time != "07:45" || spec.DayOfWeek != 2 {
		t.Fatalf("unexpected spec: %+v", spec)
	}
}
