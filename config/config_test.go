package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func validConfig() *Config {
	return &Config{ScraperSettings: &ScraperConfig{
		Delay:           0.5,
		MaxConcurrency:  10,
		RequestTimeout:  15 * time.Second,
		PageLoadTimeout: 15 * time.Second,
		SettleTimeout:   3 * time.Second,
	}}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*ScraperConfig)
		want   []error
	}{
		{name: "defaults", modify: func(*ScraperConfig) {}},
		{name: "lowest bounds", modify: func(sc *ScraperConfig) { sc.Delay = MinDelay; sc.MaxConcurrency = MinConcurrency }},
		{name: "highest bounds", modify: func(sc *ScraperConfig) {
			sc.Delay = MaxDelay
			sc.MaxConcurrency = MaxConcurrency
			sc.SettleTimeout = MaxSettleTimeout
		}},
		{name: "delay too small", modify: func(sc *ScraperConfig) { sc.Delay = 0.05 }, want: []error{ErrInvalidDelay}},
		{name: "delay too large", modify: func(sc *ScraperConfig) { sc.Delay = 2.5 }, want: []error{ErrInvalidDelay}},
		{name: "no concurrency", modify: func(sc *ScraperConfig) { sc.MaxConcurrency = 0 }, want: []error{ErrInvalidConcurrency}},
		{name: "too much concurrency", modify: func(sc *ScraperConfig) { sc.MaxConcurrency = 21 }, want: []error{ErrInvalidConcurrency}},
		{name: "page load above ceiling", modify: func(sc *ScraperConfig) { sc.PageLoadTimeout = 20 * time.Second }, want: []error{ErrInvalidTimeout}},
		{name: "settle outside window", modify: func(sc *ScraperConfig) { sc.SettleTimeout = time.Second }, want: []error{ErrInvalidTimeout}},
		{name: "all at once", modify: func(sc *ScraperConfig) {
			sc.Delay = 0
			sc.MaxConcurrency = 100
			sc.RequestTimeout = 0
		}, want: []error{ErrInvalidDelay, ErrInvalidConcurrency, ErrInvalidTimeout}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.modify(cfg.ScraperSettings)
			err := cfg.Validate()
			if len(tt.want) == 0 {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			for _, want := range tt.want {
				if !errors.Is(err, want) {
					t.Errorf("Validate() error = %v, want %v", err, want)
				}
			}
		})
	}
}

func TestValidateMissingSettings(t *testing.T) {
	t.Parallel()

	if err := (&Config{}).Validate(); !errors.Is(err, ErrMissingScraperSettings) {
		t.Errorf("Validate() error = %v, want ErrMissingScraperSettings", err)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("defaults are valid", func(t *testing.T) {
		t.Parallel()
		cfg, err := Load("", nil)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if err = cfg.Validate(); err != nil {
			t.Errorf("default config invalid: %v", err)
		}
		if cfg.ScraperSettings.DelayDuration() != 500*time.Millisecond {
			t.Errorf("DelayDuration() = %s", cfg.ScraperSettings.DelayDuration())
		}
		if cfg.KafkaSettings.WriteTopicName != "harvested-emails" || cfg.CacheSettings.TtlForWebsite != 24*time.Hour {
			t.Errorf("unexpected sink defaults: %+v %+v", cfg.KafkaSettings, cfg.CacheSettings)
		}
	})

	t.Run("file and flags", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "harvester.yaml")
		content := "log_level: debug\nscraper:\n  delay: 1.5\n  max_concurrency: 4\n  settle_timeout: 5s\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.Int("concurrency", 10, "")
		flags.Bool("render", false, "")
		if err := flags.Parse([]string{"--concurrency", "7", "--render"}); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load(path, flags)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		sc := cfg.ScraperSettings
		if cfg.LogLevel != "debug" || sc.Delay != 1.5 || sc.SettleTimeout != 5*time.Second {
			t.Errorf("file values not applied: %+v", sc)
		}
		if sc.MaxConcurrency != 7 || !sc.Render {
			t.Errorf("flags not applied: concurrency=%d render=%v", sc.MaxConcurrency, sc.Render)
		}
	})

	t.Run("missing explicit file", func(t *testing.T) {
		t.Parallel()
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}
