package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type (
	Config struct {
		TelegramAPIToken string  `env:"TOKEN,required"`
		DefaultLanguage  string  `env:"LANG,default=en"`
		AdminIDs         []int64 `env:"ADMIN_IDS"`
		LogLevel         int     `env:"LOG_LEVEL,default=4"`
		DotPath          string  `env:"DOT_PATH,default=~/.rlguard"`
		MetricsAddr      string  `env:"METRICS_ADDR,default=:2112"`

		Moderation Moderation
	}

	// Moderation holds the escalation policy and detector thresholds. It is
	// loaded once and treated as read-only for the process lifetime.
	Moderation struct {
		WarnBeforeBan       int           `env:"WARN_BEFORE_BAN,default=3"`
		MuteDuration        time.Duration `env:"MUTE_DURATION,default=1h"`
		BanDuration         time.Duration `env:"BAN_DURATION,default=168h"`
		AutoActionThreshold float64       `env:"AUTO_ACTION_THRESHOLD,default=0.7"`

		FloodWindow        time.Duration `env:"FLOOD_WINDOW,default=1m"`
		FloodThreshold     int64         `env:"FLOOD_THRESHOLD,default=10"`
		MaxLinksPerMessage int           `env:"MAX_LINKS_PER_MESSAGE,default=2"`

		// DecayWindow bounds which prior warn-level actions count toward
		// warn-before-ban escalation. Zero means they never expire.
		DecayWindow time.Duration `env:"DECAY_WINDOW,default=0"`

		// ReportDedupWindow suppresses duplicate reports on the same message
		// by the same reporter. Zero disables dedup.
		ReportDedupWindow time.Duration `env:"REPORT_DEDUP_WINDOW,default=0"`

		ReportDigestInterval time.Duration `env:"REPORT_DIGEST_INTERVAL,default=6h"`

		AllowedLanguages []string `env:"ALLOWED_LANGUAGES,default=en,ru"`

		// RulesPath points at a rule set YAML overriding the embedded one.
		RulesPath string `env:"RULES_PATH"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("RG_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		expanded, err := homedir.Expand(cfg.DotPath)
		if err != nil {
			globalErr = fmt.Errorf("expand dot path: %w", err)
			return
		}
		cfg.DotPath = expanded
		for i, lang := range cfg.Moderation.AllowedLanguages {
			cfg.Moderation.AllowedLanguages[i] = strings.ToLower(strings.TrimSpace(lang))
		}
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}
