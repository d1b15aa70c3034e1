package model

import "strings"

// Radio 一条车队无线电录音
// Transcript 为空表示已发现但尚未转写成功
type Radio struct {
	RadioKey     uint     `json:"-" gorm:"column:radio_key;primaryKey;autoIncrement"`
	SessionKey   uint     `json:"-" gorm:"column:session_key;not null;uniqueIndex:idx_radios_session_url"`
	Session      *Session `json:"-" gorm:"foreignKey:SessionKey;references:SessionKey;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Timestamp    string   `json:"timestamp" gorm:"size:32"`
	Utc          string   `json:"utc" gorm:"size:40"`
	RacingNumber string   `json:"racing_number" gorm:"size:8;index"`
	AudioURL     string   `json:"audio_url" gorm:"column:audio_url;size:512;not null;uniqueIndex:idx_radios_session_url"`
	Transcript   *string  `json:"transcript" gorm:"type:text"`
}

func (Radio) TableName() string {
	return "radios"
}

// Transcribed reports whether the row carries a non-empty transcript.
func (r *Radio) Transcribed() bool {
	return r != nil && r.Transcript != nil && strings.TrimSpace(*r.Transcript) != ""
}
