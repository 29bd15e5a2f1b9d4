package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	"StudioFM/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// dryRunDB 只生成 SQL，不连接数据库
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:1)/test",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("open dry run db: %v", err)
	}
	return db
}

func TestListBySourceQuery(t *testing.T) {
	repo := NewGormTrackRepository(dryRunDB(t))
	var records []model.TrackRecord
	stmt := repo.listQuery(context.Background(), model.SourceRadio).Find(&records).Statement

	sql := stmt.SQL.String()
	for _, want := range []string{"FROM `tracks`", "source = ? AND published = ?", "ORDER BY position ASC,id ASC"} {
		if !strings.Contains(sql, want) {
			t.Fatalf("sql %q missing %q", sql, want)
		}
	}
	if len(stmt.Vars) != 2 || stmt.Vars[0] != "radio" || stmt.Vars[1] != true {
		t.Fatalf("unexpected vars %v", stmt.Vars)
	}
}

func TestGetByIDRejectsNonNumeric(t *testing.T) {
	repo := NewGormTrackRepository(dryRunDB(t))
	if _, err := repo.GetByID(context.Background(), "fallback-radio-1"); !errors.Is(err, ErrTrackNotFound) {
		t.Fatalf("expected ErrTrackNotFound, got %v", err)
	}
}

func TestAudioURLQuery(t *testing.T) {
	repo := NewGormTrackRepository(dryRunDB(t))
	var n int64
	stmt := repo.audioURLQuery(context.Background(), "https://cdn/a.mp3").Count(&n).Statement

	sql := stmt.SQL.String()
	if !strings.Contains(sql, "FROM `tracks`") || !strings.Contains(sql, "audio_url = ? AND published = ?") {
		t.Fatalf("unexpected sql %q", sql)
	}
	if len(stmt.Vars) != 2 || stmt.Vars[0] != "https://cdn/a.mp3" {
		t.Fatalf("unexpected vars %v", stmt.Vars)
	}
}
