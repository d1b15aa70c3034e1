package model

// Driver 赛段内的车手
type Driver struct {
	DriverKey    uint     `json:"-" gorm:"column:driver_key;primaryKey;autoIncrement"`
	SessionKey   uint     `json:"-" gorm:"column:session_key;index;not null"`
	Session      *Session `json:"-" gorm:"foreignKey:SessionKey;references:SessionKey;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	DriverCode   string   `json:"code" gorm:"size:8"` // racing number
	DriverName   string   `json:"name" gorm:"size:128"`
	Abbreviation string   `json:"abbreviation,omitempty" gorm:"size:8"`
	TeamName     string   `json:"team,omitempty" gorm:"size:128"`
}

func (Driver) TableName() string {
	return "drivers"
}

// Lap 单圈成绩，时间单位为秒
type Lap struct {
	LapKey         uint     `json:"-" gorm:"column:lap_key;primaryKey;autoIncrement"`
	SessionKey     uint     `json:"-" gorm:"column:session_key;index:idx_laps_session_driver;not null"`
	Session        *Session `json:"-" gorm:"foreignKey:SessionKey;references:SessionKey;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Driver         string   `json:"driver" gorm:"size:8"`
	DriverCode     string   `json:"driver_code" gorm:"size:8;index:idx_laps_session_driver"`
	LapNumber      int      `json:"lap_number"`
	LapTime        *float64 `json:"lap_time"`
	Sector1Time    *float64 `json:"sector1_time"`
	Sector2Time    *float64 `json:"sector2_time"`
	Sector3Time    *float64 `json:"sector3_time"`
	IsPersonalBest bool     `json:"is_personal_best"`
}

func (Lap) TableName() string {
	return "laps"
}

// TelemetrySample 遥测采样点
type TelemetrySample struct {
	TelemetryKey  uint     `json:"-" gorm:"column:telemetry_key;primaryKey;autoIncrement"`
	SessionKey    uint     `json:"-" gorm:"column:session_key;index:idx_telemetry_scope;not null"`
	Session       *Session `json:"-" gorm:"foreignKey:SessionKey;references:SessionKey;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	DriverCode    string   `json:"-" gorm:"size:8;index:idx_telemetry_scope"`
	LapNumber     int      `json:"-" gorm:"index:idx_telemetry_scope"`
	SessionTimeMs float64  `json:"sessionTime_ms" gorm:"column:session_time_ms"`
	X             float64  `json:"X"`
	Y             float64  `json:"Y"`
	Gear          int      `json:"nGear"`
	Distance      float64  `json:"Distance"`
	Speed         int      `json:"Speed"`
	Throttle      float64  `json:"Throttle"`
	Brake         float64  `json:"Brake"`
	RPM           int      `json:"RPM" gorm:"column:rpm"`
	DRS           int      `json:"DRS" gorm:"column:drs"`
	Compound      string   `json:"Compound" gorm:"size:16"`
}

func (TelemetrySample) TableName() string {
	return "telemetry"
}

// PitStop 由单圈数据推导出的进站记录
type PitStop struct {
	PitKey     uint     `json:"-" gorm:"column:pit_key;primaryKey;autoIncrement"`
	SessionKey uint     `json:"-" gorm:"column:session_key;index;not null"`
	Session    *Session `json:"-" gorm:"foreignKey:SessionKey;references:SessionKey;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Driver     string   `json:"driver" gorm:"size:8"`
	LapNumber  int      `json:"lap_number"`
	PitInTime  *float64 `json:"pit_in_time"`
	PitOutTime *float64 `json:"pit_out_time"`
	Duration   *float64 `json:"duration"`
}

func (PitStop) TableName() string {
	return "pit_stops"
}

// Message 赛事干事消息
type Message struct {
	MessageKey   uint     `json:"-" gorm:"column:message_key;primaryKey;autoIncrement"`
	SessionKey   uint     `json:"-" gorm:"column:session_key;index;not null"`
	Session      *Session `json:"-" gorm:"foreignKey:SessionKey;references:SessionKey;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Time         string   `json:"time" gorm:"size:32"`
	Category     string   `json:"category" gorm:"size:32"`
	Message      string   `json:"message" gorm:"type:text"`
	Status       string   `json:"status" gorm:"size:32"`
	Flag         string   `json:"flag" gorm:"size:32"`
	Scope        string   `json:"scope" gorm:"size:32"`
	Sector       *int     `json:"sector"`
	RacingNumber string   `json:"racing_number" gorm:"size:8"`
	Lap          *int     `json:"lap"`
}

func (Message) TableName() string {
	return "messages"
}

type Weather struct {
	WeatherKey uint     `json:"-" gorm:"column:weather_key;primaryKey;autoIncrement"`
	SessionKey uint     `json:"-" gorm:"column:session_key;index;not null"`
	Session    *Session `json:"-" gorm:"foreignKey:SessionKey;references:SessionKey;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Time       *float64 `json:"time"`
	Rainfall   float64  `json:"rainfall"`
}

func (Weather) TableName() string {
	return "weather"
}
