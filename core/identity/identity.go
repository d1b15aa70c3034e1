// Package identity 把用户输入的赛事名称与赛段别名解析为规范名称
package identity

import (
	"context"
	"strings"

	"pitwall/logger"
	"pitwall/upstream"
)

var sessionTypes = map[string]string{
	"r":          "Race",
	"race":       "Race",
	"q":          "Qualifying",
	"qualifying": "Qualifying",
	"s":          "Sprint",
	"sprint":     "Sprint",
	"fp1":        "Practice 1",
	"fp2":        "Practice 2",
	"fp3":        "Practice 3",
	"practice1":  "Practice 1",
	"practice2":  "Practice 2",
	"practice3":  "Practice 3",
}

var grandPrix = map[string]string{
	"bahrain":        "Bahrain Grand Prix",
	"saudi_arabia":   "Saudi Arabian Grand Prix",
	"australia":      "Australian Grand Prix",
	"japan":          "Japanese Grand Prix",
	"china":          "Chinese Grand Prix",
	"miami":          "Miami Grand Prix",
	"emilia_romagna": "Emilia Romagna Grand Prix",
	"monaco":         "Monaco Grand Prix",
	"canada":         "Canadian Grand Prix",
	"spain":          "Spanish Grand Prix",
	"austria":        "Austrian Grand Prix",
	"silverstone":    "British Grand Prix",
	"hungary":        "Hungarian Grand Prix",
	"belgium":        "Belgian Grand Prix",
	"netherlands":    "Dutch Grand Prix",
	"italy":          "Italian Grand Prix",
	"azerbaijan":     "Azerbaijan Grand Prix",
	"singapore":      "Singapore Grand Prix",
	"texas":          "United States Grand Prix",
	"mexico":         "Mexico City Grand Prix",
	"brazil":         "São Paulo Grand Prix",
	"las_vegas":      "Las Vegas Grand Prix",
	"qatar":          "Qatar Grand Prix",
	"abu_dhabi":      "Abu Dhabi Grand Prix",
}

// ResolveSessionType maps aliases such as "r" or "FP2" to the canonical
// session name. Unknown input is returned unchanged.
func ResolveSessionType(raw string) string {
	if canonical, ok := sessionTypes[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return canonical
	}
	return raw
}

// aliasKey 统一大小写与分隔符: "Abu Dhabi", "abu-dhabi" -> "abu_dhabi"
func aliasKey(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(key)
}

// ScheduleSource is the part of the data source the resolver reads.
type ScheduleSource interface {
	Schedule(ctx context.Context, year int) ([]upstream.ScheduleEvent, error)
}

// Resolver 赛事名称解析器
type Resolver struct {
	schedule ScheduleSource
}

// NewResolver creates a resolver. schedule may be nil, in which case only
// the static alias table is consulted.
func NewResolver(schedule ScheduleSource) *Resolver {
	return &Resolver{schedule: schedule}
}

// ResolveEventName returns the official event name for raw. It checks the
// alias table, then the season schedule (exact, then substring), and falls
// back to raw. It never fails.
func (r *Resolver) ResolveEventName(ctx context.Context, raw string, year int) string {
	if name, ok := grandPrix[aliasKey(raw)]; ok {
		return name
	}
	if r.schedule == nil {
		return raw
	}

	events, err := r.schedule.Schedule(ctx, year)
	if err != nil {
		logger.Debug("Schedule lookup failed, keeping raw event name",
			logger.String("event", raw),
			logger.Int("year", year),
			logger.ErrorField(err))
		return raw
	}

	needle := strings.ToLower(strings.TrimSpace(raw))
	if needle == "" {
		return raw
	}
	for _, e := range events {
		if strings.ToLower(e.EventName) == needle {
			return e.EventName
		}
	}
	for _, e := range events {
		if strings.Contains(strings.ToLower(e.EventName), needle) {
			return e.EventName
		}
	}
	return raw
}
