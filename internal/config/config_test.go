package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/upready/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.CacheBackend, convey.ShouldEqual, config.CacheSQLite)
			convey.So(cfg.TotalSleepPolicy, convey.ShouldEqual, config.PolicyAllStages)
			convey.So(cfg.FetchTimeout(), convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.CycleTimeout(), convey.ShouldEqual, 2*time.Minute)
			convey.So(cfg.Retention(), convey.ShouldEqual, 120*24*time.Hour)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with one bad field", t, func() {
		cases := map[string]func(*config.Config){
			"addr":          func(c *config.Config) { c.Addr = " " },
			"log_format":    func(c *config.Config) { c.LogFormat = "xml" },
			"timezone":      func(c *config.Config) { c.Timezone = "Mars/Olympus" },
			"queue_size":    func(c *config.Config) { c.QueueSize = 0 },
			"schedule":      func(c *config.Config) { c.RefreshSchedule = "every tuesday" },
			"policy":        func(c *config.Config) { c.TotalSleepPolicy = "naps" },
			"default_age":   func(c *config.Config) { c.DefaultAge = 0 },
			"birth_date":    func(c *config.Config) { c.BirthDate = "01/05/1990" },
			"history_days":  func(c *config.Config) { c.HistoryDays = 400 },
			"retention":     func(c *config.Config) { c.RetentionDays = 30 },
			"cache_backend": func(c *config.Config) { c.CacheBackend = "memcached" },
			"redis_addr":    func(c *config.Config) { c.CacheBackend = config.CacheRedis; c.RedisAddr = "" },
		}

		convey.Convey("Then each is rejected as invalid", func() {
			for name, mutate := range cases {
				cfg := config.New()
				mutate(cfg)
				err := cfg.Validate()
				convey.So(name+":"+errText(err), convey.ShouldNotEqual, name+":")
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			}
		})
	})

	convey.Convey("Given a config with a timezone and birth date", t, func() {
		cfg := config.New()
		cfg.Timezone = "Europe/Amsterdam"
		cfg.BirthDate = "1990-05-01"
		cfg.BodyTemperatureAvailable = true

		convey.Convey("Then they resolve", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
			loc, err := cfg.Location()
			convey.So(err, convey.ShouldBeNil)
			convey.So(loc.String(), convey.ShouldEqual, "Europe/Amsterdam")
			birth, err := cfg.BirthDateTime()
			convey.So(err, convey.ShouldBeNil)
			convey.So(birth.Year(), convey.ShouldEqual, 1990)
			convey.So(cfg.Capabilities().BodyTemperature, convey.ShouldBeTrue)
			convey.So(cfg.Capabilities().BloodOxygen, convey.ShouldBeFalse)
		})
	})
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
