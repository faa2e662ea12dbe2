package models

import "time"

// UserAccount is a registered end-user account. The session string is an
// opaque blob produced by the external auth provider; we store and forward
// it to the transport untouched.
type UserAccount struct {
	ID            int64
	PhoneNumber   string
	SessionString string
	IsActive      bool
	TotalStars    float64
	CreatedAt     time.Time
	LastActivity  time.Time
}

// TaskRecord is one completed task. DedupeKey is the remote bot's message
// identifier that announced the completion; storage backends ignore a
// second insert with the same (AccountID, DedupeKey).
type TaskRecord struct {
	ID          int64
	AccountID   int64
	TaskType    string
	ChannelLink string
	Reward      float64
	DedupeKey   string
	CompletedAt time.Time
}

// AccountStats are the durable counters shown in the status card.
type AccountStats struct {
	TotalStars float64
	TotalTasks int
	TodayTasks int
}

// UserSettings holds per-account toggles.
type UserSettings struct {
	AccountID     int64
	AutoCollect   bool
	Notifications bool
}
