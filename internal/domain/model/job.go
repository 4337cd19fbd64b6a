package model

import "time"

type ScheduleType string

const (
	ScheduleDaily  ScheduleType = "daily"
	ScheduleWeekly ScheduleType = "weekly"
	ScheduleCron   ScheduleType = "cron"
)

type ChannelType string

const (
	ChannelDiscord  ChannelType = "discord"
	ChannelTelegram ChannelType = "telegram"
	ChannelWebhook  ChannelType = "webhook"
	ChannelInApp    ChannelType = "in_app"
)

// Job is a user-defined prompt job. The locked fields (LockedAt, FailCount,
// NextRunAt, Enabled) are mutated only by the runner holding the lock token;
// schedule and channel fields are owned by the editing collaborators.
type Job struct {
	ID      string
	OwnerID string
	Name    string
	Enabled bool

	ScheduleType      ScheduleType
	ScheduleTime      string // "HH:mm", UTC
	ScheduleDayOfWeek int    // 0=Sunday..6=Saturday; -1 when unset
	ScheduleCron      string

	ChannelType   ChannelType
	ChannelConfig []byte // encrypted, transport-specific JSON

	Model    string
	UseTool  bool
	ToolMode string

	PublishedVersionID string

	NextRunAt time.Time
	LockedAt  *time.Time
	FailCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}
