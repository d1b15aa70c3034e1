package livetiming

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"pitwall/upstream"

	json "github.com/goccy/go-json"
)

// sessionInfoDoc is SessionInfo.json.
type sessionInfoDoc struct {
	Meeting struct {
		Name     string `json:"Name"`
		Location string `json:"Location"`
		Country  struct {
			Name string `json:"Name"`
		} `json:"Country"`
		Circuit struct {
			ShortName string `json:"ShortName"`
		} `json:"Circuit"`
	} `json:"Meeting"`
	Name string `json:"Name"`
	Type string `json:"Type"`
}

type lapCountMsg struct {
	CurrentLap *int `json:"CurrentLap"`
	TotalLaps  *int `json:"TotalLaps"`
}

// driverList accepts DriverList.json, skipping non numeric keys such as "_kf".
type driverList map[string]driverListItem

func (dl *driverList) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := make(map[string]driverListItem, len(m))
	for k, v := range m {
		if _, err := strconv.Atoi(k); err != nil {
			continue
		}
		var d driverListItem
		if err := json.Unmarshal(v, &d); err != nil {
			continue
		}
		out[k] = d
	}
	*dl = out
	return nil
}

type driverListItem struct {
	RacingNumber  string `json:"RacingNumber"`
	BroadcastName string `json:"BroadcastName"`
	FullName      string `json:"FullName"`
	Tla           string `json:"Tla"`
	Line          int    `json:"Line"`
	TeamName      string `json:"TeamName"`
}

// SessionInfo loads circuit, country and meeting name plus the total lap
// count. Sessions without a lap count (practice, qualifying) report zero.
func (c *Client) SessionInfo(ctx context.Context, ref upstream.SessionRef) (upstream.SessionInfo, error) {
	data, err := c.getCached(ctx, ref.Path+"SessionInfo.json", 0)
	if err != nil {
		return upstream.SessionInfo{}, err
	}
	var doc sessionInfoDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return upstream.SessionInfo{}, fmt.Errorf("decode SessionInfo.json: %w", err)
	}

	info := upstream.SessionInfo{
		CircuitName: doc.Meeting.Circuit.ShortName,
		Location:    doc.Meeting.Country.Name,
		MeetingName: doc.Meeting.Name,
	}

	laps, err := c.getCached(ctx, ref.Path+"LapCount.jsonStream", 0)
	switch {
	case errors.Is(err, upstream.ErrNotFound):
		return info, nil
	case err != nil:
		return upstream.SessionInfo{}, err
	}
	for _, line := range parseStream(laps) {
		var msg lapCountMsg
		if err := json.Unmarshal(line.Payload, &msg); err != nil {
			continue
		}
		if msg.TotalLaps != nil {
			info.TotalLaps = *msg.TotalLaps
		}
	}
	return info, nil
}

func (c *Client) driverList(ctx context.Context, ref upstream.SessionRef) (driverList, error) {
	data, err := c.getCached(ctx, ref.Path+"DriverList.json", 0)
	if err != nil {
		return nil, err
	}
	var dl driverList
	if err := json.Unmarshal(data, &dl); err != nil {
		return nil, fmt.Errorf("decode DriverList.json: %w", err)
	}
	return dl, nil
}

// Drivers 返回车手名单，按计时屏顺序
func (c *Client) Drivers(ctx context.Context, ref upstream.SessionRef) ([]upstream.Driver, error) {
	dl, err := c.driverList(ctx, ref)
	if err != nil {
		return nil, err
	}

	numbers := make([]string, 0, len(dl))
	for num := range dl {
		numbers = append(numbers, num)
	}
	sort.Slice(numbers, func(i, j int) bool {
		li, lj := dl[numbers[i]].Line, dl[numbers[j]].Line
		if li != lj {
			return li < lj
		}
		ni, _ := strconv.Atoi(numbers[i])
		nj, _ := strconv.Atoi(numbers[j])
		return ni < nj
	})

	drivers := make([]upstream.Driver, 0, len(numbers))
	for _, num := range numbers {
		item := dl[num]
		racing := item.RacingNumber
		if racing == "" {
			racing = num
		}
		drivers = append(drivers, upstream.Driver{
			RacingNumber: racing,
			Abbreviation: item.Tla,
			FullName:     item.FullName,
			TeamName:     item.TeamName,
		})
	}
	return drivers, nil
}
