package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// ScheduleType selects between a one-shot and a recurring task schedule.
type ScheduleType string

const (
	ScheduleTypeOnce      ScheduleType = "once"
	ScheduleTypeRecurring ScheduleType = "recurring"
)

// ReplyStrategy controls how much of a topic is sent as context for a
// generated reply, and where the reply is threaded.
type ReplyStrategy string

const (
	ReplyStrategyFirstPost  ReplyStrategy = "first_post"
	ReplyStrategyWholeTopic ReplyStrategy = "whole_topic"
	ReplyStrategyLastPost   ReplyStrategy = "last_post"
)

// TaskConfig is the typed view of Task.Config. Keys vary per task type;
// unknown keys are ignored and missing keys take the defaults applied by
// DecodeTaskConfig.
type TaskConfig struct {
	ScheduleType ScheduleType `json:"schedule_type"`
	Frequency    string       `json:"frequency"` // hourly, 3hours, 6hours, daily, 3days, weekly

	// Legacy schedule form, used when Frequency is empty.
	IntervalValue int    `json:"interval_value"`
	IntervalUnit  string `json:"interval_unit"` // minutes, hours, days, weeks

	// Active window. ActiveDays holds time.Weekday values (0 = Sunday);
	// empty means every day. Hours are "HH:MM"; empty means all day.
	ActiveDays       []int  `json:"active_days"`
	ActiveHoursStart string `json:"active_hours_start"`
	ActiveHoursEnd   string `json:"active_hours_end"`

	// RunOnApproval tasks are event-triggered by content approval hooks
	// instead of being polled by the scheduler.
	RunOnApproval bool `json:"run_on_approval"`

	// Credit guard.
	MaxDailyCredits    int  `json:"max_daily_credits"`
	PauseOnCreditLimit bool `json:"pause_on_credit_limit"`

	// Generation targets and volume.
	ItemsPerRun  int    `json:"items_per_run"`
	TopicsPerRun int    `json:"topics_per_run"`
	ForumIDs     []uint `json:"forum_ids"`
	TopicIDs     []uint `json:"topic_ids"`
	AuthorID     uint   `json:"author_id"`

	// Reply generator options.
	ReplyStrategy     ReplyStrategy `json:"reply_strategy"`
	SkipRepliedTopics bool          `json:"skip_replied_topics"`
	TopicsNewerThan   *time.Time    `json:"topics_newer_than"`
	TopicsOlderThan   *time.Time    `json:"topics_older_than"`

	// Tag maintenance options.
	PreserveExisting bool `json:"preserve_existing"`
	RemoveDuplicates bool `json:"remove_duplicates"`
	DropIrrelevant   bool `json:"drop_irrelevant"`
	LowercaseTags    bool `json:"lowercase_tags"`

	// Generation quality knobs, expanded to instruction text by the executor.
	Tone   string `json:"tone"`
	Length string `json:"length"`

	// RAG / duplicate suppression.
	UseRAGContext      bool    `json:"use_rag_context"`
	DuplicateCheck     bool    `json:"duplicate_check"`
	DuplicateThreshold float64 `json:"duplicate_threshold"`
}

// DecodeTaskConfig unmarshals a task's config blob and fills defaults.
// A nil or empty blob yields a config of pure defaults; malformed JSON is
// an error the caller decides how to surface.
func DecodeTaskConfig(blob datatypes.JSON) (*TaskConfig, error) {
	cfg := &TaskConfig{}
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode task config: %w", err)
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

// EncodeTaskConfig marshals a typed config back into the storage blob.
func EncodeTaskConfig(cfg *TaskConfig) (datatypes.JSON, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task config: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func (c *TaskConfig) applyDefaults() {
	if c.ScheduleType == "" {
		c.ScheduleType = ScheduleTypeRecurring
	}
	if c.ItemsPerRun <= 0 {
		c.ItemsPerRun = 1
	}
	if c.TopicsPerRun <= 0 {
		c.TopicsPerRun = 5
	}
	if c.ReplyStrategy == "" {
		c.ReplyStrategy = ReplyStrategyFirstPost
	}
	if c.DuplicateThreshold <= 0 {
		c.DuplicateThreshold = 0.85
	}
}

// InActiveWindow reports whether t falls on an allowed weekday and inside
// the configured time-of-day window.
func (c *TaskConfig) InActiveWindow(t time.Time) bool {
	return c.dayAllowed(t) && c.inActiveHours(t)
}

func (c *TaskConfig) dayAllowed(t time.Time) bool {
	if len(c.ActiveDays) == 0 {
		return true
	}
	day := int(t.Weekday())
	for _, d := range c.ActiveDays {
		if d == day {
			return true
		}
	}
	return false
}

func (c *TaskConfig) inActiveHours(t time.Time) bool {
	start, okStart := parseClock(c.ActiveHoursStart)
	end, okEnd := parseClock(c.ActiveHoursEnd)
	if !okStart || !okEnd {
		return true // no (or malformed) window means all day
	}
	minutes := t.Hour()*60 + t.Minute()
	return minutes >= start && minutes <= end
}

// WindowStart returns t moved to the window's opening time on the same
// day, or t unchanged when no window is configured.
func (c *TaskConfig) WindowStart(t time.Time) time.Time {
	start, ok := parseClock(c.ActiveHoursStart)
	if !ok {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), start/60, start%60, 0, 0, t.Location())
}

// parseClock parses "HH:MM" into minutes-since-midnight.
func parseClock(s string) (int, bool) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
