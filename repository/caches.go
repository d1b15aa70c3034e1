package repository

import (
	"pitwall/db"
	"pitwall/model"

	"gorm.io/gorm"
)

// Caches groups the entity cache tables of a session.
type Caches struct {
	Drivers   EntityRepository[model.Driver]
	Laps      EntityRepository[model.Lap]
	Telemetry EntityRepository[model.TelemetrySample]
	PitStops  EntityRepository[model.PitStop]
	Messages  EntityRepository[model.Message]
	Weather   EntityRepository[model.Weather]
}

// NewGormCaches 创建全部实体缓存仓库
// Rows are read back in insertion order, which is upstream order.
func NewGormCaches(gdb *gorm.DB, retry db.RetryConfig) Caches {
	return Caches{
		Drivers:   NewGormEntityRepository[model.Driver](gdb, "drivers", "driver_key", retry),
		Laps:      NewGormEntityRepository[model.Lap](gdb, "laps", "lap_key", retry),
		Telemetry: NewGormEntityRepository[model.TelemetrySample](gdb, "telemetry", "session_time_ms, telemetry_key", retry),
		PitStops:  NewGormEntityRepository[model.PitStop](gdb, "pit_stops", "pit_key", retry),
		Messages:  NewGormEntityRepository[model.Message](gdb, "messages", "message_key", retry),
		Weather:   NewGormEntityRepository[model.Weather](gdb, "weather", "weather_key", retry),
	}
}
