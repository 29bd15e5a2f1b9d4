package db

import (
	"strings"
	"testing"

	"StudioFM/config"
)

func TestDSN(t *testing.T) {
	cfg := &config.Config{
		DBHost:     "db.internal",
		DBPort:     "3307",
		DBUser:     "studio",
		DBPassword: "p@ss:word",
		DBName:     "studiofm",
	}
	dsn := DSN(cfg)
	for _, want := range []string{"studio:p@ss:word@tcp(db.internal:3307)/studiofm", "parseTime=true", "charset=utf8mb4"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("dsn %q missing %q", dsn, want)
		}
	}
}
