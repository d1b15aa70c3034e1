package model

import "time"

// Session 一个赛段（正赛、排位、冲刺、练习）
type Session struct {
	SessionKey   uint      `json:"session_key" gorm:"column:session_key;primaryKey;autoIncrement"`
	SessionID    string    `json:"session_id" gorm:"column:session_id;size:191;uniqueIndex;not null"`
	Year         int       `json:"year" gorm:"index:idx_sessions_lookup"`
	GP           string    `json:"grand_prix" gorm:"column:gp;size:128;index:idx_sessions_lookup"`
	SessionType  string    `json:"session_type" gorm:"size:32;index:idx_sessions_lookup"`
	Date         time.Time `json:"date"`
	CircuitName  string    `json:"circuit_name" gorm:"size:128"`
	Location     string    `json:"location" gorm:"size:128"`
	NumberOfLaps int       `json:"number_of_laps"`
	EventName    string    `json:"event_name" gorm:"size:191"`
	ArchivePath  string    `json:"-" gorm:"size:255"`
	CreatedAt    time.Time `json:"-"`
}

// TableName 指定表名
func (Session) TableName() string {
	return "sessions"
}

// SyncMarker records that one entity scope of a session was fully persisted.
// It is written in the same transaction as the rows it covers.
type SyncMarker struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	SessionKey uint      `gorm:"column:session_key;not null;uniqueIndex:idx_sync_marker"`
	Session    *Session  `gorm:"foreignKey:SessionKey;references:SessionKey;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Entity     string    `gorm:"size:32;not null;uniqueIndex:idx_sync_marker"`
	Scope      string    `gorm:"size:128;not null;uniqueIndex:idx_sync_marker"`
	RowCount   int       `gorm:"column:row_count;not null;default:0"`
	SyncedAt   time.Time `gorm:"not null"`
}

func (SyncMarker) TableName() string {
	return "sync_markers"
}

// All returns every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&Session{},
		&SyncMarker{},
		&Driver{},
		&Lap{},
		&TelemetrySample{},
		&PitStop{},
		&Message{},
		&Weather{},
		&Radio{},
	}
}
