package syncer

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"pitwall/model"
	"pitwall/upstream"
)

// timeLayout 赛事干事消息的时间格式
const timeLayout = "2006-01-02T15:04:05"

// Seconds converts a duration to seconds. nil stays nil.
func Seconds(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	s := d.Seconds()
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return nil
	}
	return &s
}

func secondsOf(d time.Duration) *float64 {
	return Seconds(&d)
}

func driverRows(sessionKey uint, drivers []upstream.Driver) []model.Driver {
	rows := make([]model.Driver, 0, len(drivers))
	for _, d := range drivers {
		name := d.FullName
		if name == "" {
			name = d.RacingNumber
		}
		rows = append(rows, model.Driver{
			SessionKey:   sessionKey,
			DriverCode:   d.RacingNumber,
			DriverName:   name,
			Abbreviation: d.Abbreviation,
			TeamName:     d.TeamName,
		})
	}
	return rows
}

func lapRows(sessionKey uint, laps []upstream.Lap) []model.Lap {
	rows := make([]model.Lap, 0, len(laps))
	for _, l := range laps {
		rows = append(rows, model.Lap{
			SessionKey:     sessionKey,
			Driver:         l.Driver,
			DriverCode:     l.DriverNumber,
			LapNumber:      l.LapNumber,
			LapTime:        Seconds(l.LapTime),
			Sector1Time:    Seconds(l.Sector1Time),
			Sector2Time:    Seconds(l.Sector2Time),
			Sector3Time:    Seconds(l.Sector3Time),
			IsPersonalBest: l.PersonalBest,
		})
	}
	return rows
}

// DerivePitStops pairs every out-lap with the in-time recorded on the
// same driver's previous lap. Out-laps without one keep a nil duration.
func DerivePitStops(laps []upstream.Lap) []model.PitStop {
	ordered := make([]upstream.Lap, len(laps))
	copy(ordered, laps)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Driver != ordered[j].Driver {
			return ordered[i].Driver < ordered[j].Driver
		}
		return ordered[i].LapNumber < ordered[j].LapNumber
	})

	var stops []model.PitStop
	for i, lap := range ordered {
		if lap.PitOutTime == nil {
			continue
		}
		stop := model.PitStop{
			Driver:     lap.Driver,
			LapNumber:  lap.LapNumber,
			PitOutTime: Seconds(lap.PitOutTime),
		}
		if i > 0 {
			prev := ordered[i-1]
			if prev.Driver == lap.Driver && prev.PitInTime != nil {
				stop.PitInTime = Seconds(prev.PitInTime)
				stop.Duration = secondsOf(*lap.PitOutTime - *prev.PitInTime)
			}
		}
		stops = append(stops, stop)
	}
	return stops
}

func pitStopRows(sessionKey uint, laps []upstream.Lap) []model.PitStop {
	stops := DerivePitStops(laps)
	for i := range stops {
		stops[i].SessionKey = sessionKey
	}
	return stops
}

func messageRows(sessionKey uint, msgs []upstream.RaceControlMessage) []model.Message {
	rows := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		row := model.Message{
			SessionKey:   sessionKey,
			Category:     m.Category,
			Message:      m.Message,
			Status:       m.Status,
			Flag:         m.Flag,
			Scope:        m.Scope,
			Sector:       m.Sector,
			RacingNumber: m.RacingNumber,
			Lap:          m.Lap,
		}
		if !m.Time.IsZero() {
			row.Time = m.Time.UTC().Format(timeLayout)
		}
		rows = append(rows, row)
	}
	return rows
}

func weatherRows(sessionKey uint, samples []upstream.WeatherSample) []model.Weather {
	rows := make([]model.Weather, 0, len(samples))
	for _, w := range samples {
		rows = append(rows, model.Weather{
			SessionKey: sessionKey,
			Time:       secondsOf(w.Time),
			Rainfall:   w.Rainfall,
		})
	}
	return rows
}

func telemetryRows(sessionKey uint, driverCode string, lapNumber int, samples []upstream.TelemetrySample) []model.TelemetrySample {
	rows := make([]model.TelemetrySample, 0, len(samples))
	for _, s := range samples {
		rows = append(rows, model.TelemetrySample{
			SessionKey:    sessionKey,
			DriverCode:    driverCode,
			LapNumber:     lapNumber,
			SessionTimeMs: float64(s.SessionTime) / float64(time.Millisecond),
			X:             s.X,
			Y:             s.Y,
			Gear:          s.Gear,
			Distance:      s.Distance,
			Speed:         s.Speed,
			Throttle:      s.Throttle,
			Brake:         s.Brake,
			RPM:           s.RPM,
			DRS:           s.DRS,
			Compound:      s.Compound,
		})
	}
	return rows
}

// sameDriver matches a racing number or an abbreviation, e.g. "44" or "ham".
func sameDriver(code, number, abbreviation string) bool {
	if code == number {
		return true
	}
	if n, err := strconv.Atoi(code); err == nil && strconv.Itoa(n) == number {
		return true
	}
	return abbreviation != "" && strings.EqualFold(code, abbreviation)
}
