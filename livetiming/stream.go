package livetiming

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// streamLine is one entry of a .jsonStream document: the offset from the
// start of the feed and the raw JSON payload that follows it.
type streamLine struct {
	Offset  time.Duration
	Payload []byte
}

// parseOffset parses "HH:MM:SS.mmm".
func parseOffset(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("bad stream offset %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("bad stream offset %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("bad stream offset %q: %w", s, err)
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, fmt.Errorf("bad stream offset %q: %w", s, err)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec*float64(time.Second)), nil
}

// parseStream splits a .jsonStream document. Payloads start at the first
// '{' or '"'. Lines without a parseable offset are dropped. Line length is
// not bounded.
func parseStream(data []byte) []streamLine {
	var lines []streamLine
	for len(data) > 0 {
		var line []byte
		line, data, _ = bytes.Cut(data, []byte{'\n'})
		raw := bytes.TrimSpace(line)
		if len(raw) == 0 {
			continue
		}
		i := bytes.IndexAny(raw, "{\"")
		if i <= 0 {
			continue
		}
		offset, err := parseOffset(string(raw[:i]))
		if err != nil {
			continue
		}
		payload := make([]byte, len(raw)-i)
		copy(payload, raw[i:])
		lines = append(lines, streamLine{Offset: offset, Payload: payload})
	}
	return lines
}

// inflate decodes a ".z" payload: a JSON string holding base64 of raw
// deflate compressed JSON.
func inflate(payload []byte) ([]byte, error) {
	var encoded string
	if err := json.Unmarshal(payload, &encoded); err != nil {
		return nil, fmt.Errorf("compressed payload is not a string: %w", err)
	}
	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	return out, nil
}

// parseLapTime parses archive lap and sector values: "1:23.456", "23.456".
// Empty or unparseable values yield nil.
func parseLapTime(s string) *time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var minutes int
	if i := strings.IndexByte(s, ':'); i >= 0 {
		m, err := strconv.Atoi(s[:i])
		if err != nil {
			return nil
		}
		minutes = m
		s = s[i+1:]
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	d := time.Duration(minutes)*time.Minute + time.Duration(sec*float64(time.Second))
	d = d.Round(time.Millisecond)
	return &d
}

// parseUTC parses archive timestamps, which come with or without a zone
// and with up to seven fractional digits.
func parseUTC(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02T15:04:05.999999999", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
