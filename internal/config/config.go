package config

import (
	"errors"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone  = "UTC"
	configPathEnv    = "BOUNTY_SCANNER_CONFIG"
	modeEnv          = "MODE"
	githubTokenEnv   = "GITHUB_TOKEN"
	githubUserEnv    = "GITHUB_USERNAME"
	slackBotTokenEnv = "SLACK_BOT_TOKEN"
	slackWebhookEnv  = "SLACK_WEBHOOK_URL"
	slackChannelEnv  = "SLACK_CHANNEL"
	databasePathEnv  = "BOUNTY_DB"
	logLevelEnv      = "LOG_LEVEL"
)

var repoPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// Config holds high-level settings required across the application.
type Config struct {
	Mode          string          `yaml:"mode"`
	Database      DatabaseConfig  `yaml:"database"`
	Scheduler     SchedulerConfig `yaml:"scheduler"`
	GitHub        GitHubConfig    `yaml:"github"`
	Algora        AlgoraConfig    `yaml:"algora"`
	Slack         SlackConfig     `yaml:"slack"`
	Digest        DigestConfig    `yaml:"digest"`
	Export        ExportConfig    `yaml:"export"`
	Logging       LoggingConfig   `yaml:"logging"`
	BootstrapDays int             `yaml:"bootstrapDays"`
}

// DatabaseConfig describes the SQLite store location.
type DatabaseConfig struct {
	Path        string   `yaml:"path"`
	BusyTimeout Duration `yaml:"busyTimeout"`
}

// SchedulerConfig defines when collect and digest cycles run.
type SchedulerConfig struct {
	CollectCron string         `yaml:"collectCron"`
	DigestCron  string         `yaml:"digestCron"`
	Timezone    string         `yaml:"timezone"`
	location    *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// GitHubConfig wires the issue-search source adapter.
type GitHubConfig struct {
	Token               string   `yaml:"token"`
	Username            string   `yaml:"username"`
	UseProfileLanguages bool     `yaml:"useProfileLanguages"`
	StaticLanguages     []string `yaml:"staticLanguages"`
	Labels              []string `yaml:"labels"`
	Repos               []string `yaml:"repos"`
	WindowMinutes       int      `yaml:"windowMinutes"`
}

// AlgoraConfig lists the Algora organizations to poll for bounties.
type AlgoraConfig struct {
	Orgs []string `yaml:"orgs"`
}

// SlackConfig wires the primary (bot API) and fallback (webhook) transports.
type SlackConfig struct {
	BotToken         string `yaml:"botToken"`
	WebhookURL       string `yaml:"webhookUrl"`
	Channel          string `yaml:"channel"`
	MaxChars         int    `yaml:"maxChars"`
	PostLongAsThread bool   `yaml:"postLongAsThread"`
	Unfurl           bool   `yaml:"unfurl"`
}

// DigestConfig controls digest selection.
type DigestConfig struct {
	LookbackMinutes int `yaml:"lookbackMinutes"`
	MinCount        int `yaml:"minCount"`
	MaxItems        int `yaml:"maxItems"`
}

// ExportConfig controls the CSV artifact written after a delivered digest.
type ExportConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	UploadToSlack bool   `yaml:"uploadToSlack"`
}

// LoggingConfig selects the console log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Duration parses human-readable durations ("5s", "2m") from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			cfg = defaultConfig()
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	cfg.GitHub.Repos = cleanRepos(cfg.GitHub.Repos)

	return cfg
}

// Validate checks the settings without which no cycle can do useful work.
func (c Config) Validate() error {
	if c.GitHub.Token == "" {
		return errors.New("github token is required (GITHUB_TOKEN)")
	}
	if c.Slack.BotToken == "" && c.Slack.WebhookURL == "" {
		return errors.New("either SLACK_BOT_TOKEN or SLACK_WEBHOOK_URL is required")
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(modeEnv); v != "" {
		c.Mode = v
	}
	if v := os.Getenv(githubTokenEnv); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv(githubUserEnv); v != "" {
		c.GitHub.Username = v
	}
	if v := os.Getenv(slackBotTokenEnv); v != "" {
		c.Slack.BotToken = v
	}
	if v := os.Getenv(slackWebhookEnv); v != "" {
		c.Slack.WebhookURL = v
	}
	if v := os.Getenv(slackChannelEnv); v != "" {
		c.Slack.Channel = v
	}
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

// cleanRepos keeps only well-formed owner/name entries. Quoted values and
// comment lines (leading '#') carried over from env files are tolerated.
func cleanRepos(repos []string) []string {
	cleaned := make([]string, 0, len(repos))
	for _, r := range repos {
		r = strings.Trim(strings.TrimSpace(r), `"'`)
		if r == "" || strings.HasPrefix(r, "#") {
			continue
		}
		if repoPattern.MatchString(r) {
			cleaned = append(cleaned, r)
		}
	}
	return cleaned
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Mode: "collect",
		Database: DatabaseConfig{
			Path:        "bounties.db",
			BusyTimeout: Duration(5 * time.Second),
		},
		Scheduler: SchedulerConfig{
			CollectCron: "*/12 * * * *",
			DigestCron:  "0 * * * *",
			Timezone:    defaultTimezone,
			location:    tz,
		},
		GitHub: GitHubConfig{
			Username:            "bryanwills",
			UseProfileLanguages: true,
			StaticLanguages:     []string{"TypeScript", "Go", "Python"},
			Labels:              []string{"bounty", "💎 Bounty", "reward", "algora"},
			WindowMinutes:       12,
		},
		Slack: SlackConfig{
			Channel:          "#bounties",
			MaxChars:         3500,
			PostLongAsThread: true,
			Unfurl:           true,
		},
		Digest: DigestConfig{
			LookbackMinutes: 60,
			MinCount:        1,
			MaxItems:        50,
		},
		Export: ExportConfig{
			Enabled: true,
			Dir:     "./bounty_csv",
		},
		Logging:       LoggingConfig{Level: "info"},
		BootstrapDays: 7,
	}
}
