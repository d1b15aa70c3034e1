package db

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pitwall/config"
	"pitwall/model"

	"gorm.io/gorm"
)

func testMySQLConfig() *config.Config {
	return &config.Config{
		DBUser:     "f1",
		DBPassword: "secret",
		DBHost:     "db",
		DBPort:     "3306",
		DBName:     "pitwall",
	}
}

func TestSQLiteDSN(t *testing.T) {
	dsn := SQLiteDSN("data/f1.db", 5*time.Second)
	for _, want := range []string{"data/f1.db?", "busy_timeout(5000)", "journal_mode(WAL)"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
}

func TestOpenSQLiteAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "f1.db")
	gdb, err := OpenSQLite(path, time.Second, "info")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer Close(gdb)

	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, table := range []string{"sessions", "drivers", "laps", "telemetry", "pit_stops", "messages", "weather", "radios", "sync_markers"} {
		if !gdb.Migrator().HasTable(table) {
			t.Errorf("table %s not created", table)
		}
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(&config.Config{DBDriver: "postgres"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestChildRowsRequireSession(t *testing.T) {
	gdb, err := OpenSQLite(filepath.Join(t.TempDir(), "fk.db"), time.Second, "error")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer Close(gdb)
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	orphans := []interface{}{
		&model.Lap{SessionKey: 999, DriverCode: "1", LapNumber: 1},
		&model.Radio{SessionKey: 999, AudioURL: "https://example.test/a.mp3"},
		&model.SyncMarker{SessionKey: 999, Entity: "laps", Scope: "*", SyncedAt: time.Now()},
	}
	for _, row := range orphans {
		if err := gdb.Create(row).Error; err == nil {
			t.Errorf("orphan %T inserted without a session", row)
		}
	}

	s := &model.Session{SessionID: "28-05-2023-MONACO GRAND PRIX-RACE", Year: 2023, GP: "Monaco Grand Prix", SessionType: "Race"}
	if err := gdb.Create(s).Error; err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := gdb.Create(&model.Lap{SessionKey: s.SessionKey, DriverCode: "1", LapNumber: 1}).Error; err != nil {
		t.Fatalf("lap with session: %v", err)
	}

	// 删除赛段时级联删除子表
	if err := gdb.Delete(&model.Session{}, s.SessionKey).Error; err != nil {
		t.Fatalf("delete session: %v", err)
	}
	var laps int64
	gdb.Model(&model.Lap{}).Where("session_key = ?", s.SessionKey).Count(&laps)
	if laps != 0 {
		t.Errorf("laps left after session delete: %d", laps)
	}
}

func TestGormLoggerSkipsRecordNotFound(t *testing.T) {
	var buf bytes.Buffer
	l := gormLogger(&buf, "info")
	sql := func() (string, int64) { return "SELECT * FROM sessions", 0 }

	l.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Errorf("record not found was logged: %q", buf.String())
	}

	l.Trace(context.Background(), time.Now(), sql, errors.New("disk I/O error"))
	if !strings.Contains(buf.String(), "disk I/O error") {
		t.Errorf("real error not logged: %q", buf.String())
	}
}
