package livetiming

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"pitwall/upstream"

	json "github.com/goccy/go-json"
)

type raceControlDoc struct {
	Messages raceControlList `json:"Messages"`
}

// raceControlList accepts both the list and the keyed map form.
type raceControlList []raceControlMsg

func (l *raceControlList) UnmarshalJSON(data []byte) error {
	var list []raceControlMsg
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var m map[string]raceControlMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		if n, err := strconv.Atoi(k); err == nil {
			keys = append(keys, n)
		}
	}
	sort.Ints(keys)
	out := make([]raceControlMsg, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[strconv.Itoa(k)])
	}
	*l = out
	return nil
}

type raceControlMsg struct {
	Utc          string     `json:"Utc"`
	Lap          *int       `json:"Lap"`
	Category     string     `json:"Category"`
	Message      string     `json:"Message"`
	Flag         string     `json:"Flag"`
	Scope        string     `json:"Scope"`
	Status       string     `json:"Status"`
	Sector       *int       `json:"Sector"`
	RacingNumber flexString `json:"RacingNumber"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(data) == "null" {
		*f = ""
		return nil
	}
	*f = flexString(data)
	return nil
}

// RaceControl 返回赛事干事消息
func (c *Client) RaceControl(ctx context.Context, ref upstream.SessionRef) ([]upstream.RaceControlMessage, error) {
	data, err := c.get(ctx, ref.Path+"RaceControlMessages.json")
	if err != nil {
		return nil, err
	}
	var doc raceControlDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode RaceControlMessages.json: %w", err)
	}

	out := make([]upstream.RaceControlMessage, 0, len(doc.Messages))
	for _, m := range doc.Messages {
		msg := upstream.RaceControlMessage{
			Category:     m.Category,
			Message:      m.Message,
			Status:       m.Status,
			Flag:         m.Flag,
			Scope:        m.Scope,
			Sector:       m.Sector,
			RacingNumber: string(m.RacingNumber),
			Lap:          m.Lap,
		}
		if t, err := parseUTC(m.Utc); err == nil {
			msg.Time = t
		}
		out = append(out, msg)
	}
	return out, nil
}

type weatherMsg struct {
	Rainfall flexString `json:"Rainfall"`
}

// Weather 返回天气采样，时间为会话内偏移
func (c *Client) Weather(ctx context.Context, ref upstream.SessionRef) ([]upstream.WeatherSample, error) {
	data, err := c.get(ctx, ref.Path+"WeatherData.jsonStream")
	if err != nil {
		return nil, err
	}

	var out []upstream.WeatherSample
	for _, line := range parseStream(data) {
		var msg weatherMsg
		if err := json.Unmarshal(line.Payload, &msg); err != nil {
			continue
		}
		rain, err := strconv.ParseFloat(strings.TrimSpace(string(msg.Rainfall)), 64)
		if err != nil {
			continue
		}
		out = append(out, upstream.WeatherSample{Time: line.Offset, Rainfall: rain})
	}
	return out, nil
}

// TeamRadio returns the raw TeamRadio.jsonStream manifest of a session.
func (c *Client) TeamRadio(ctx context.Context, ref upstream.SessionRef) ([]byte, error) {
	return c.get(ctx, ref.Path+"TeamRadio.jsonStream")
}

// ResolveURL builds the absolute URL of a manifest-relative audio path.
func (c *Client) ResolveURL(ref upstream.SessionRef, rel string) string {
	return c.baseURL + ref.Path + strings.TrimLeft(rel, "/")
}
