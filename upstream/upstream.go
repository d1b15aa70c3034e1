// Package upstream holds the typed records produced by the timing data source.
// Consumers declare the narrow interfaces they need next to their own code.
package upstream

import (
	"errors"
	"time"
)

// ErrNotFound is returned when the data source has no record for the
// requested event, session, driver or lap. Any other error is transient.
var ErrNotFound = errors.New("upstream: not found")

// ScheduleEvent 赛历中的一站
type ScheduleEvent struct {
	Round     int       `json:"RoundNumber"`
	EventName string    `json:"EventName"`
	EventDate time.Time `json:"EventDate"`
	Location  string    `json:"Location,omitempty"`
	Country   string    `json:"Country,omitempty"`
}

// SessionRef identifies one session in the archive. It is the result of a
// metadata-only lookup and carries everything needed for later loads.
type SessionRef struct {
	Year        int
	EventName   string
	SessionName string
	Date        time.Time // session start, UTC
	Path        string    // archive path, e.g. 2023/2023-05-28_Monaco_Grand_Prix/2023-05-28_Race/
}

// SessionInfo is the heavier session-level metadata.
type SessionInfo struct {
	CircuitName string
	Location    string
	MeetingName string
	TotalLaps   int
}

type Driver struct {
	RacingNumber string
	Abbreviation string
	FullName     string
	TeamName     string
}

// Lap is one completed lap. Durations are nil when the source has no value.
// PitInTime and PitOutTime are session times.
type Lap struct {
	DriverNumber string
	Driver       string // three letter abbreviation
	LapNumber    int
	LapTime      *time.Duration
	Sector1Time  *time.Duration
	Sector2Time  *time.Duration
	Sector3Time  *time.Duration
	PersonalBest bool
	PitInTime    *time.Duration
	PitOutTime   *time.Duration
	Compound     string
	StartTime    time.Duration
	EndTime      time.Duration
}

// TelemetrySample is one merged car/position sample.
type TelemetrySample struct {
	SessionTime time.Duration
	X           float64
	Y           float64
	Gear        int
	Distance    float64 // metres since lap start
	Speed       int     // km/h
	Throttle    float64
	Brake       float64
	RPM         int
	DRS         int
	Compound    string
}

type RaceControlMessage struct {
	Time         time.Time
	Category     string
	Message      string
	Status       string
	Flag         string
	Scope        string
	Sector       *int
	RacingNumber string
	Lap          *int
}

type WeatherSample struct {
	Time     time.Duration
	Rainfall float64
}
