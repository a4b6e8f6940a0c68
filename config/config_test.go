package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/ncmc")
	t.Setenv("DECODE_WORKERS", "0")

	cfg := FromEnv()
	if cfg.UploadDir != filepath.Join("/var/lib/ncmc", "uploads") || cfg.OutputDir != filepath.Join("/var/lib/ncmc", "media") {
		t.Errorf("dirs = %q %q", cfg.UploadDir, cfg.OutputDir)
	}
	if cfg.DecodeWorkers != 1 {
		t.Errorf("workers = %d, want clamped to 1", cfg.DecodeWorkers)
	}
	if cfg.DecodeTimeout != 2*time.Minute || cfg.MediaURLPrefix != "/media/" || cfg.MediaBackend != "local" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DECODE_WORKERS", "3")
	t.Setenv("DECODE_TIMEOUT", "45s")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("CACHE_TTL", "1h")
	t.Setenv("MINIO_USE_SSL", "yes") // 非法值回退默认

	cfg := FromEnv()
	if cfg.HTTPAddr != ":9090" || cfg.DecodeWorkers != 3 || cfg.DecodeTimeout != 45*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.RedisEnabled || cfg.RedisDB != 2 || cfg.CacheTTL != time.Hour {
		t.Errorf("redis = %v %d %v", cfg.RedisEnabled, cfg.RedisDB, cfg.CacheTTL)
	}
	if cfg.MinioUseSSL {
		t.Error("invalid bool should fall back to false")
	}
}

func TestInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("SESSION_TTL", "forever")
	if got := FromEnv().SessionTTL; got != 12*time.Hour {
		t.Errorf("SessionTTL = %v", got)
	}
}
