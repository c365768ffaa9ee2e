package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/inhouse/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.ReadyCheckTimeoutMS, convey.ShouldEqual, 120_000)
				convey.So(cfg.EventQueueSize, convey.ShouldEqual, 10_000)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("INHOUSE_ADDR", ":8080")
			_ = os.Setenv("INHOUSE_READY_CHECK_TIMEOUT_MS", "5000")
			_ = os.Setenv("INHOUSE_RESULT_GRACE_MS", "0")
			_ = os.Setenv("INHOUSE_EVENT_WORKER_COUNT", "8")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.ReadyCheckTimeoutMS, convey.ShouldEqual, 5000)
				convey.So(cfg.ResultGraceMS, convey.ShouldEqual, 0)
				convey.So(cfg.EventWorkerCount, convey.ShouldEqual, 8)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
storage: sqlite
sqlite_path: /tmp/inhouse-test.db
dispute_window_ms: 10000
champions:
  - Ahri
  - Lee Sin
`
			tmpFile := createTempConfigFile(t, yamlContent)
			_ = os.Setenv("INHOUSE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Storage, convey.ShouldEqual, config.StorageSQLite)
				convey.So(cfg.DisputeWindowMS, convey.ShouldEqual, 10000)
				convey.So(cfg.Champions, convey.ShouldResemble, []string{"Ahri", "Lee Sin"})
			})
		})

		convey.Convey("When env overrides the YAML file", func() {
			tmpFile := createTempConfigFile(t, "addr: \":9090\"\n")
			_ = os.Setenv("INHOUSE_CONFIG", tmpFile)
			_ = os.Setenv("INHOUSE_ADDR", ":7070")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then env wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("INHOUSE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should fail with ErrLoadConfig", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When thresholds are inverted", func() {
			_ = os.Setenv("INHOUSE_ACCEPTABLE_MATCH_THRESHOLD", "-0.01")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then validation rejects it", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, k := range []string{
		"INHOUSE_CONFIG",
		"INHOUSE_ADDR",
		"INHOUSE_READY_CHECK_TIMEOUT_MS",
		"INHOUSE_RESULT_GRACE_MS",
		"INHOUSE_EVENT_WORKER_COUNT",
		"INHOUSE_ACCEPTABLE_MATCH_THRESHOLD",
	} {
		_ = os.Unsetenv(k)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inhouse.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
