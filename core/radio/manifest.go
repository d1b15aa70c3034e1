// Package radio discovers team radio clips of a session and transcribes each
// of them at most once.
package radio

import (
	"bytes"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Artifact 清单中的一条录音
type Artifact struct {
	Timestamp    string // raw stream offset before the JSON object
	Utc          string
	RacingNumber string
	Path         string // relative to the session archive path
}

type capture struct {
	Utc          string       `json:"Utc"`
	RacingNumber racingNumber `json:"RacingNumber"`
	Path         string       `json:"Path"`
}

// racingNumber accepts "44" as well as 44.
type racingNumber string

func (n *racingNumber) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = racingNumber(s)
		return nil
	}
	if string(data) == "null" {
		*n = ""
		return nil
	}
	*n = racingNumber(data)
	return nil
}

// captureList holds Captures in either list or keyed map form.
type captureList []capture

func (cl *captureList) UnmarshalJSON(data []byte) error {
	var list []capture
	if err := json.Unmarshal(data, &list); err == nil {
		*cl = list
		return nil
	}
	var m map[string]capture
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// 键一般是 "0", "1", ...
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})
	out := make([]capture, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	*cl = out
	return nil
}

type manifestLine struct {
	Captures captureList `json:"Captures"`
}

// ParseManifest extracts artifacts from a TeamRadio.jsonStream document.
// Each line is a raw timestamp directly followed by a JSON object. Lines
// without '{' or with invalid JSON are skipped, however long they are.
func ParseManifest(data []byte) []Artifact {
	var artifacts []Artifact
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	for len(data) > 0 {
		var raw []byte
		raw, data, _ = bytes.Cut(data, []byte{'\n'})
		line := strings.TrimRight(string(raw), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		i := strings.IndexByte(line, '{')
		if i < 0 {
			continue
		}
		var ml manifestLine
		if err := json.Unmarshal([]byte(line[i:]), &ml); err != nil {
			continue
		}
		timestamp := strings.TrimSpace(line[:i])
		for _, c := range ml.Captures {
			if c.Path == "" {
				continue
			}
			artifacts = append(artifacts, Artifact{
				Timestamp:    timestamp,
				Utc:          c.Utc,
				RacingNumber: string(c.RacingNumber),
				Path:         c.Path,
			})
		}
	}
	return artifacts
}
