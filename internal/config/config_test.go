package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/inhouse/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Storage, convey.ShouldEqual, config.StorageMemory)
			convey.So(cfg.QueueBackend, convey.ShouldEqual, config.QueueBackendStore)
			convey.So(cfg.ReadyCheckTimeout(), convey.ShouldEqual, 2*time.Minute)
			convey.So(cfg.ResultGrace(), convey.ShouldEqual, time.Minute)
			convey.So(cfg.DisputeWindow(), convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.GoodMatchThreshold, convey.ShouldEqual, -0.1)
			convey.So(cfg.AcceptableMatchThreshold, convey.ShouldEqual, -0.2)
			convey.So(cfg.DefaultMu, convey.ShouldEqual, 25)
			convey.So(cfg.DefaultSigma, convey.ShouldAlmostEqual, 8.3333, 0.001)
			convey.So(cfg.DrawProbability, convey.ShouldEqual, 0.10)
			convey.So(cfg.RoleConfidence, convey.ShouldEqual, 80)
			convey.So(cfg.ChampionConfidence, convey.ShouldEqual, 75)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs that break one constraint each", t, func() {
		cases := map[string]func(*config.Config){
			"empty addr":          func(c *config.Config) { c.Addr = "" },
			"zero timeout":        func(c *config.Config) { c.ReadyCheckTimeoutMS = 0 },
			"negative grace":      func(c *config.Config) { c.ResultGraceMS = -1 },
			"zero dispute window": func(c *config.Config) { c.DisputeWindowMS = 0 },
			"positive good":       func(c *config.Config) { c.GoodMatchThreshold = 0.1 },
			"inverted thresholds": func(c *config.Config) { c.AcceptableMatchThreshold = -0.05 },
			"zero sigma":          func(c *config.Config) { c.DefaultSigma = 0 },
			"draw of one":         func(c *config.Config) { c.DrawProbability = 1 },
			"unknown storage":     func(c *config.Config) { c.Storage = "mongo" },
			"sqlite without path": func(c *config.Config) { c.Storage = config.StorageSQLite; c.SQLitePath = "" },
			"unknown queue":       func(c *config.Config) { c.QueueBackend = "kafka" },
			"redis without addr":  func(c *config.Config) { c.QueueBackend = config.QueueBackendRedis; c.RedisAddr = "" },
		}

		for name, mutate := range cases {
			convey.Convey("When "+name, func() {
				cfg := config.New()
				mutate(cfg)
				err := cfg.Validate()

				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}
