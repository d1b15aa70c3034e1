package livetiming

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"pitwall/upstream"

	json "github.com/goccy/go-json"
)

// seasonIndex is {year}/Index.json.
type seasonIndex struct {
	Year     int           `json:"Year"`
	Meetings []meetingItem `json:"Meetings"`
}

type meetingItem struct {
	Key          int    `json:"Key"`
	Number       int    `json:"Number"`
	Name         string `json:"Name"`
	OfficialName string `json:"OfficialName"`
	Location     string `json:"Location"`
	Country      struct {
		Name string `json:"Name"`
	} `json:"Country"`
	Circuit struct {
		ShortName string `json:"ShortName"`
	} `json:"Circuit"`
	Sessions []sessionItem `json:"Sessions"`
}

type sessionItem struct {
	Key       int    `json:"Key"`
	Type      string `json:"Type"`
	Number    int    `json:"Number"`
	Name      string `json:"Name"`
	StartDate string `json:"StartDate"`
	EndDate   string `json:"EndDate"`
	GmtOffset string `json:"GmtOffset"`
	Path      string `json:"Path"`
}

// startUTC converts the local StartDate using GmtOffset ("-04:00:00").
func (s sessionItem) startUTC() (time.Time, error) {
	local, err := time.Parse("2006-01-02T15:04:05", s.StartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("session %q start date: %w", s.Name, err)
	}
	return local.Add(-parseGmtOffset(s.GmtOffset)).UTC(), nil
}

func parseGmtOffset(s string) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	sign := time.Duration(1)
	if s[0] == '-' {
		sign = -1
		s = s[1:]
	} else if s[0] == '+' {
		s = s[1:]
	}
	var total time.Duration
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	for i, part := range strings.Split(s, ":") {
		if i >= len(units) {
			break
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0
		}
		total += time.Duration(n) * units[i]
	}
	return sign * total
}

func isTesting(m meetingItem) bool {
	return strings.Contains(strings.ToLower(m.Name), "testing")
}

// seasonIndex loads {year}/Index.json. Finished seasons never change and
// use the cache default; the running season is kept for liveTTL only, or
// not cached when liveTTL <= 0.
func (c *Client) seasonIndex(ctx context.Context, year int) (*seasonIndex, error) {
	rel := fmt.Sprintf("%d/Index.json", year)
	var data []byte
	var err error
	switch {
	case year < c.now().Year():
		data, err = c.getCached(ctx, rel, 0)
	case c.liveTTL > 0:
		data, err = c.getCached(ctx, rel, c.liveTTL)
	default:
		data, err = c.get(ctx, rel)
	}
	if err != nil {
		return nil, err
	}
	var idx seasonIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decode %d Index.json: %w", year, err)
	}
	return &idx, nil
}

// championshipMeetings returns the non-testing meetings in calendar order.
func championshipMeetings(idx *seasonIndex) []meetingItem {
	meetings := make([]meetingItem, 0, len(idx.Meetings))
	for _, m := range idx.Meetings {
		if isTesting(m) || len(m.Sessions) == 0 {
			continue
		}
		meetings = append(meetings, m)
	}
	sort.SliceStable(meetings, func(i, j int) bool {
		return meetings[i].Sessions[0].StartDate < meetings[j].Sessions[0].StartDate
	})
	return meetings
}

// Schedule 返回某赛季的分站列表（不含季前测试）
func (c *Client) Schedule(ctx context.Context, year int) ([]upstream.ScheduleEvent, error) {
	idx, err := c.seasonIndex(ctx, year)
	if err != nil {
		return nil, err
	}

	meetings := championshipMeetings(idx)
	events := make([]upstream.ScheduleEvent, 0, len(meetings))
	for i, m := range meetings {
		last := m.Sessions[len(m.Sessions)-1]
		date, err := last.startUTC()
		if err != nil {
			return nil, err
		}
		events = append(events, upstream.ScheduleEvent{
			Round:     i + 1,
			EventName: m.Name,
			EventDate: time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
			Location:  m.Location,
			Country:   m.Country.Name,
		})
	}
	return events, nil
}

// matchMeeting matches case-insensitively on the meeting name first, then
// on substring of name, location or country.
func matchMeeting(meetings []meetingItem, event string) (meetingItem, bool) {
	needle := strings.ToLower(strings.TrimSpace(event))
	if needle == "" {
		return meetingItem{}, false
	}
	for _, m := range meetings {
		if strings.ToLower(m.Name) == needle {
			return m, true
		}
	}
	for _, m := range meetings {
		for _, hay := range []string{m.Name, m.Location, m.Country.Name} {
			if hay != "" && strings.Contains(strings.ToLower(hay), needle) {
				return m, true
			}
		}
	}
	return meetingItem{}, false
}

func matchSession(sessions []sessionItem, sessionType string) (sessionItem, bool) {
	want := strings.ToLower(strings.TrimSpace(sessionType))
	for _, s := range sessions {
		if strings.ToLower(s.Name) == want {
			return s, true
		}
	}
	return sessionItem{}, false
}

// sessionPath rebuilds the archive path when the index omits it.
func sessionPath(year int, meetingName string, s sessionItem, start time.Time) string {
	if s.Path != "" {
		if strings.HasSuffix(s.Path, "/") {
			return s.Path
		}
		return s.Path + "/"
	}
	date := start.Format("2006-01-02")
	return fmt.Sprintf("%d/%s_%s/%s_%s/", year, date,
		strings.ReplaceAll(meetingName, " ", "_"), date,
		strings.ReplaceAll(s.Name, " ", "_"))
}

// FindSession locates a session using only the season index.
func (c *Client) FindSession(ctx context.Context, year int, event, sessionType string) (upstream.SessionRef, error) {
	idx, err := c.seasonIndex(ctx, year)
	if err != nil {
		return upstream.SessionRef{}, err
	}

	meeting, ok := matchMeeting(championshipMeetings(idx), event)
	if !ok {
		return upstream.SessionRef{}, fmt.Errorf("event %q in %d: %w", event, year, upstream.ErrNotFound)
	}
	session, ok := matchSession(meeting.Sessions, sessionType)
	if !ok {
		return upstream.SessionRef{}, fmt.Errorf("session %q of %s: %w", sessionType, meeting.Name, upstream.ErrNotFound)
	}
	start, err := session.startUTC()
	if err != nil {
		return upstream.SessionRef{}, err
	}

	return upstream.SessionRef{
		Year:        year,
		EventName:   meeting.Name,
		SessionName: session.Name,
		Date:        start,
		Path:        sessionPath(year, meeting.Name, session, start),
	}, nil
}
