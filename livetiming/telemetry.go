package livetiming

import (
	"context"
	"errors"
	"sort"
	"time"

	"pitwall/upstream"

	json "github.com/goccy/go-json"
)

// CarData channel ids.
const (
	channelRPM      = "0"
	channelSpeed    = "2"
	channelGear     = "3"
	channelThrottle = "4"
	channelBrake    = "5"
	channelDRS      = "45"
)

type carDataDoc struct {
	Entries []struct {
		Utc  string `json:"Utc"`
		Cars map[string]struct {
			Channels map[string]float64 `json:"Channels"`
		} `json:"Cars"`
	} `json:"Entries"`
}

type positionDoc struct {
	Position []struct {
		Timestamp string `json:"Timestamp"`
		Entries   map[string]struct {
			X float64 `json:"X"`
			Y float64 `json:"Y"`
		} `json:"Entries"`
	} `json:"Position"`
}

type carSample struct {
	at       time.Duration
	channels map[string]float64
}

type posSample struct {
	at   time.Duration
	x, y float64
}

// sessionClock maps UTC instants onto stream offsets, anchored on the
// first decoded entry of a stream.
type sessionClock struct {
	anchored bool
	origin   time.Time
}

func (sc *sessionClock) at(offset time.Duration, utc time.Time) time.Duration {
	if !sc.anchored {
		sc.origin = utc.Add(-offset)
		sc.anchored = true
	}
	return utc.Sub(sc.origin)
}

func decodeCarData(lines []streamLine, driverNumber string, from, to time.Duration) []carSample {
	var clock sessionClock
	var out []carSample
	for _, line := range lines {
		raw, err := inflate(line.Payload)
		if err != nil {
			continue
		}
		var doc carDataDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		for _, entry := range doc.Entries {
			utc, err := parseUTC(entry.Utc)
			if err != nil {
				continue
			}
			at := clock.at(line.Offset, utc)
			car, ok := entry.Cars[driverNumber]
			if !ok || at < from || at > to {
				continue
			}
			out = append(out, carSample{at: at, channels: car.Channels})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].at < out[j].at })
	return out
}

func decodePositions(lines []streamLine, driverNumber string, from, to time.Duration) []posSample {
	var clock sessionClock
	var out []posSample
	for _, line := range lines {
		raw, err := inflate(line.Payload)
		if err != nil {
			continue
		}
		var doc positionDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		for _, p := range doc.Position {
			utc, err := parseUTC(p.Timestamp)
			if err != nil {
				continue
			}
			at := clock.at(line.Offset, utc)
			e, ok := p.Entries[driverNumber]
			if !ok || at < from || at > to {
				continue
			}
			out = append(out, posSample{at: at, x: e.X, y: e.Y})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].at < out[j].at })
	return out
}

// mergeTelemetry pairs each car sample with the latest position at or
// before it and integrates distance from speed.
func mergeTelemetry(cars []carSample, positions []posSample, compound string) []upstream.TelemetrySample {
	samples := make([]upstream.TelemetrySample, 0, len(cars))
	pi := 0
	var distance float64
	for i, cs := range cars {
		for pi+1 < len(positions) && positions[pi+1].at <= cs.at {
			pi++
		}
		speed := cs.channels[channelSpeed]
		if i > 0 {
			prev := cars[i-1]
			dt := (cs.at - prev.at).Seconds()
			// km/h -> m/s, trapezoid
			distance += (speed + prev.channels[channelSpeed]) / 2 / 3.6 * dt
		}

		brake := 0.0
		if cs.channels[channelBrake] > 0 {
			brake = 1
		}
		s := upstream.TelemetrySample{
			SessionTime: cs.at,
			Gear:        int(cs.channels[channelGear]),
			Distance:    distance,
			Speed:       int(speed),
			Throttle:    cs.channels[channelThrottle],
			Brake:       brake,
			RPM:         int(cs.channels[channelRPM]),
			DRS:         int(cs.channels[channelDRS]),
			Compound:    compound,
		}
		if len(positions) > 0 && positions[pi].at <= cs.at {
			s.X = positions[pi].x
			s.Y = positions[pi].y
		}
		samples = append(samples, s)
	}
	return samples
}

// Telemetry 返回某车手某一圈的遥测数据
func (c *Client) Telemetry(ctx context.Context, ref upstream.SessionRef, driverNumber string, lapNumber int) ([]upstream.TelemetrySample, error) {
	lap, err := c.lapWindow(ctx, ref, driverNumber, lapNumber)
	if err != nil {
		return nil, err
	}

	carRaw, err := c.get(ctx, ref.Path+"CarData.z.jsonStream")
	if err != nil {
		return nil, err
	}
	cars := decodeCarData(parseStream(carRaw), driverNumber, lap.StartTime, lap.EndTime)

	var positions []posSample
	posRaw, err := c.get(ctx, ref.Path+"Position.z.jsonStream")
	switch {
	case err == nil:
		positions = decodePositions(parseStream(posRaw), driverNumber, lap.StartTime, lap.EndTime)
	case !errors.Is(err, upstream.ErrNotFound):
		return nil, err
	}

	return mergeTelemetry(cars, positions, lap.Compound), nil
}
