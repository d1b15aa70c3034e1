package livetiming

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"pitwall/upstream"

	json "github.com/goccy/go-json"
)

// timingDataMsg is one TimingData.jsonStream entry. The first entry is the
// full reference state; later ones only carry changed fields.
type timingDataMsg struct {
	Lines timingLines `json:"Lines"`
}

type timingLines map[string]timingLine

func (tl *timingLines) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := make(map[string]timingLine, len(m))
	for k, v := range m {
		if _, err := strconv.Atoi(k); err != nil {
			continue
		}
		var line timingLine
		if err := json.Unmarshal(v, &line); err != nil {
			continue
		}
		out[k] = line
	}
	*tl = out
	return nil
}

type timingLine struct {
	InPit        *bool        `json:"InPit"`
	PitOut       *bool        `json:"PitOut"`
	NumberOfLaps *int         `json:"NumberOfLaps"`
	LastLapTime  *lastLapTime `json:"LastLapTime"`
	Sectors      sectorMap    `json:"Sectors"`
}

type lastLapTime struct {
	Value           *string `json:"Value"`
	PersonalFastest *bool   `json:"PersonalFastest"`
}

// sectorMap holds sectors keyed by index. Reference messages send a list,
// change messages a map.
type sectorMap map[string]sectorTiming

func (sm *sectorMap) UnmarshalJSON(data []byte) error {
	m := make(map[string]sectorTiming)
	if err := json.Unmarshal(data, &m); err == nil {
		*sm = m
		return nil
	}
	var list []sectorTiming
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	for i, v := range list {
		m[strconv.Itoa(i)] = v
	}
	*sm = m
	return nil
}

type sectorTiming struct {
	Value           *string `json:"Value"`
	PersonalFastest *bool   `json:"PersonalFastest"`
}

// timingAppMsg is one TimingAppData.jsonStream entry.
type timingAppMsg struct {
	Lines map[string]struct {
		Stints stintMap `json:"Stints"`
	} `json:"Lines"`
}

type stintMap map[string]stint

func (s *stintMap) UnmarshalJSON(data []byte) error {
	m := make(map[string]stint)
	if err := json.Unmarshal(data, &m); err == nil {
		*s = m
		return nil
	}
	var list []stint
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	for i, v := range list {
		m[strconv.Itoa(i)] = v
	}
	*s = m
	return nil
}

type stint struct {
	Compound  *string `json:"Compound"`
	TotalLaps *int    `json:"TotalLaps"`
}

// lapBuilder accumulates the lap in progress.
type lapBuilder struct {
	sectors [3]*time.Duration
	pitIn   *time.Duration
	pitOut  *time.Duration
	start   time.Duration
}

type driverReplay struct {
	number    string
	completed int
	observed  bool
	inPit     bool
	cur       lapBuilder
	pending   *time.Duration
	pendingPB bool
	laps      []upstream.Lap
}

func durPtr(d time.Duration) *time.Duration { return &d }

func (d *driverReplay) last() *upstream.Lap {
	if len(d.laps) == 0 {
		return nil
	}
	return &d.laps[len(d.laps)-1]
}

func (d *driverReplay) apply(at time.Duration, line timingLine) {
	for key, s := range line.Sectors {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx > 2 || s.Value == nil {
			continue
		}
		v := parseLapTime(*s.Value)
		if v == nil {
			continue
		}
		// 第三扇区可能在圈数递增后才到达
		if last := d.last(); idx == 2 && d.cur.sectors[0] == nil && last != nil && last.Sector3Time == nil {
			last.Sector3Time = v
			continue
		}
		d.cur.sectors[idx] = v
	}

	if line.InPit != nil {
		if d.observed && *line.InPit && !d.inPit {
			d.cur.pitIn = durPtr(at)
		}
		if !*line.InPit && d.inPit {
			d.cur.pitOut = durPtr(at)
		}
		d.inPit = *line.InPit
	}
	d.observed = true

	if ll := line.LastLapTime; ll != nil {
		if ll.Value != nil {
			if v := parseLapTime(*ll.Value); v != nil {
				pb := ll.PersonalFastest != nil && *ll.PersonalFastest
				if last := d.last(); last != nil && last.LapTime == nil && d.cur.sectors[0] == nil {
					last.LapTime = v
					last.PersonalBest = pb
				} else {
					d.pending = v
					d.pendingPB = pb
				}
			}
		} else if ll.PersonalFastest != nil {
			if last := d.last(); last != nil && d.pending == nil {
				last.PersonalBest = *ll.PersonalFastest
			} else {
				d.pendingPB = *ll.PersonalFastest
			}
		}
	}

	if line.NumberOfLaps != nil && *line.NumberOfLaps > d.completed {
		for n := d.completed + 1; n <= *line.NumberOfLaps; n++ {
			d.finish(n, at)
		}
		d.completed = *line.NumberOfLaps
	}
}

func (d *driverReplay) finish(lapNumber int, at time.Duration) {
	lap := upstream.Lap{
		DriverNumber: d.number,
		LapNumber:    lapNumber,
		Sector1Time:  d.cur.sectors[0],
		Sector2Time:  d.cur.sectors[1],
		Sector3Time:  d.cur.sectors[2],
		PitInTime:    d.cur.pitIn,
		PitOutTime:   d.cur.pitOut,
		StartTime:    d.cur.start,
		EndTime:      at,
	}
	if d.pending != nil {
		lap.LapTime = d.pending
		lap.PersonalBest = d.pendingPB
	}
	d.laps = append(d.laps, lap)
	d.pending = nil
	d.pendingPB = false
	d.cur = lapBuilder{start: at}
}

// replayTiming rebuilds completed laps per driver from TimingData lines.
func replayTiming(lines []streamLine) map[string]*driverReplay {
	drivers := make(map[string]*driverReplay)
	var origin time.Duration
	if len(lines) > 0 {
		origin = lines[0].Offset
	}
	for _, line := range lines {
		var msg timingDataMsg
		if err := json.Unmarshal(line.Payload, &msg); err != nil {
			continue
		}
		for num, tl := range msg.Lines {
			d, ok := drivers[num]
			if !ok {
				d = &driverReplay{number: num, cur: lapBuilder{start: origin}}
				drivers[num] = d
			}
			d.apply(line.Offset, tl)
		}
	}
	return drivers
}

// replayStints merges stint compounds per driver, ordered by stint index.
func replayStints(lines []streamLine) map[string][]string {
	merged := make(map[string]map[int]string)
	for _, line := range lines {
		var msg timingAppMsg
		if err := json.Unmarshal(line.Payload, &msg); err != nil {
			continue
		}
		for num, l := range msg.Lines {
			if _, err := strconv.Atoi(num); err != nil {
				continue
			}
			for key, s := range l.Stints {
				idx, err := strconv.Atoi(key)
				if err != nil || s.Compound == nil {
					continue
				}
				if merged[num] == nil {
					merged[num] = make(map[int]string)
				}
				merged[num][idx] = *s.Compound
			}
		}
	}

	out := make(map[string][]string, len(merged))
	for num, byIdx := range merged {
		n := 0
		for idx := range byIdx {
			if idx+1 > n {
				n = idx + 1
			}
		}
		compounds := make([]string, n)
		for idx, c := range byIdx {
			compounds[idx] = c
		}
		out[num] = compounds
	}
	return out
}

// assignCompounds walks a driver's laps; every out-lap after the first lap
// starts the next stint.
func assignCompounds(laps []upstream.Lap, compounds []string) {
	stintIdx := 0
	for i := range laps {
		if i > 0 && laps[i].PitOutTime != nil && stintIdx+1 < len(compounds) {
			stintIdx++
		}
		if stintIdx < len(compounds) {
			laps[i].Compound = compounds[stintIdx]
		}
	}
}

// Laps 回放计时数据，返回所有车手的已完成圈
func (c *Client) Laps(ctx context.Context, ref upstream.SessionRef) ([]upstream.Lap, error) {
	data, err := c.get(ctx, ref.Path+"TimingData.jsonStream")
	if err != nil {
		return nil, err
	}
	replays := replayTiming(parseStream(data))

	abbreviations := make(map[string]string)
	dl, err := c.driverList(ctx, ref)
	switch {
	case err == nil:
		for num, d := range dl {
			abbreviations[num] = d.Tla
		}
	case !errors.Is(err, upstream.ErrNotFound):
		return nil, err
	}

	var stints map[string][]string
	appData, err := c.get(ctx, ref.Path+"TimingAppData.jsonStream")
	switch {
	case err == nil:
		stints = replayStints(parseStream(appData))
	case !errors.Is(err, upstream.ErrNotFound):
		return nil, err
	}

	numbers := make([]string, 0, len(replays))
	for num := range replays {
		numbers = append(numbers, num)
	}
	sort.Slice(numbers, func(i, j int) bool {
		ni, _ := strconv.Atoi(numbers[i])
		nj, _ := strconv.Atoi(numbers[j])
		return ni < nj
	})

	var laps []upstream.Lap
	for _, num := range numbers {
		driverLaps := replays[num].laps
		assignCompounds(driverLaps, stints[num])
		for i := range driverLaps {
			driverLaps[i].Driver = abbreviations[num]
			if driverLaps[i].Driver == "" {
				driverLaps[i].Driver = num
			}
		}
		laps = append(laps, driverLaps...)
	}
	return laps, nil
}

// lapWindow returns the session-time bounds of one driver's lap.
func (c *Client) lapWindow(ctx context.Context, ref upstream.SessionRef, driverNumber string, lapNumber int) (upstream.Lap, error) {
	laps, err := c.Laps(ctx, ref)
	if err != nil {
		return upstream.Lap{}, err
	}
	for _, lap := range laps {
		if lap.DriverNumber == driverNumber && lap.LapNumber == lapNumber {
			return lap, nil
		}
	}
	return upstream.Lap{}, fmt.Errorf("driver %s lap %d: %w", driverNumber, lapNumber, upstream.ErrNotFound)
}
