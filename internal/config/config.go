// Package config provides centralized configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata" // scheduled hosts often lack a zoneinfo database

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrConfig is returned for missing or malformed configuration. It is always
// raised before any network or storage I/O happens.
var ErrConfig = errors.New("configuration error")

// EnvPrefix is prepended to every environment override (e.g. JIRADIGEST_JIRASERVER).
const EnvPrefix = "JIRADIGEST"

// Config holds all configuration parameters for the application.
type Config struct {
	Jira     JiraConfig
	Store    StoreConfig
	Email    EmailConfig
	Schedule ScheduleConfig

	// Timezone overrides the timezone reported by the Jira user profile.
	Timezone string

	// LogDir, when set, receives a dated log file in addition to stdout.
	LogDir string
}

// JiraConfig holds JIRA specific configuration.
type JiraConfig struct {
	URL      string
	Token    string
	Username string
	Project  string
	Owner    string
	PageSize int
}

// StoreConfig holds local storage configuration.
type StoreConfig struct {
	RootDir string
}

// EmailConfig holds outgoing mail configuration.
type EmailConfig struct {
	Sender        string
	Password      string
	Recipients    []string
	SMTPServer    string
	SMTPPort      int
	RecipientName string
}

// ScheduleConfig holds the cron expressions used by the schedule command.
type ScheduleConfig struct {
	SyncCron   string
	ReportCron string
}

// Location resolves the configured timezone override. It returns nil when no
// override is configured.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return nil, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid Timezone %q: %v", ErrConfig, c.Timezone, err)
	}
	return loc, nil
}

// LoadConfig reads configuration from a config file, a .env file and the
// environment. When path is empty, config.{json,yaml,toml} in the working
// directory is used if present.
func LoadConfig(path string) (*Config, error) {
	// A missing .env file is normal.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: failed to read config file %s: %v", ErrConfig, path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("%w: failed to read config file: %v", ErrConfig, err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Also accept the variable names used by other Jira tooling.
	_ = v.BindEnv("JiraServer", EnvPrefix+"_JIRASERVER", "JIRA_URL")
	_ = v.BindEnv("JiraAuthToken", EnvPrefix+"_JIRAAUTHTOKEN", "JIRA_TOKEN")
	_ = v.BindEnv("JiraUsername", EnvPrefix+"_JIRAUSERNAME", "JIRA_USERNAME")

	cfg := &Config{
		Jira: JiraConfig{
			URL:      strings.TrimRight(v.GetString("JiraServer"), "/"),
			Token:    v.GetString("JiraAuthToken"),
			Username: v.GetString("JiraUsername"),
			Project:  v.GetString("JiraProject"),
			Owner:    v.GetString("JiraOwner"),
			PageSize: v.GetInt("PageSize"),
		},
		Store: StoreConfig{
			RootDir: v.GetString("DBRootDir"),
		},
		Email: EmailConfig{
			Sender:        v.GetString("EmailSender"),
			Password:      v.GetString("EmailPassword"),
			Recipients:    splitList(v.GetString("EmailRecipient")),
			SMTPServer:    v.GetString("EmailSMTPServer"),
			SMTPPort:      v.GetInt("EmailSMTPPort"),
			RecipientName: v.GetString("RecipientName"),
		},
		Schedule: ScheduleConfig{
			SyncCron:   v.GetString("SyncCron"),
			ReportCron: v.GetString("ReportCron"),
		},
		Timezone: v.GetString("Timezone"),
		LogDir:   v.GetString("LogDir"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("JiraOwner", "currentUser()")
	v.SetDefault("PageSize", 50)
	v.SetDefault("DBRootDir", "db")
	v.SetDefault("EmailSMTPPort", 587)
	v.SetDefault("SyncCron", "*/30 * * * *")
	v.SetDefault("ReportCron", "0 17 * * FRI")
}

// validateConfig checks the settings every command depends on. Jira, report
// and email settings are checked by the commands that use them.
func validateConfig(config *Config) error {
	if config.Store.RootDir == "" {
		return fmt.Errorf("%w: missing required settings: [DBRootDir]", ErrConfig)
	}
	if _, err := config.Location(); err != nil {
		return err
	}
	return nil
}

// ValidateJiraConfig validates JIRA-specific configuration.
func ValidateJiraConfig(config *Config) error {
	var missingVars []string

	if config.Jira.URL == "" {
		missingVars = append(missingVars, "JiraServer")
	}
	if config.Jira.Token == "" {
		missingVars = append(missingVars, "JiraAuthToken")
	}
	if config.Jira.Owner == "" {
		missingVars = append(missingVars, "JiraOwner")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("%w: missing required settings: %v", ErrConfig, missingVars)
	}

	u, err := url.Parse(config.Jira.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: JiraServer %q is not an absolute URL", ErrConfig, config.Jira.URL)
	}
	if config.Jira.PageSize <= 0 {
		return fmt.Errorf("%w: PageSize must be positive, got %d", ErrConfig, config.Jira.PageSize)
	}

	return nil
}

// ValidateReportConfig validates the settings needed to build the weekly report query.
func ValidateReportConfig(config *Config) error {
	if config.Jira.Project == "" {
		return fmt.Errorf("%w: missing required settings: [JiraProject]", ErrConfig)
	}
	return nil
}

// ValidateEmailConfig validates the settings needed to send the weekly report.
func ValidateEmailConfig(config *Config) error {
	var missingVars []string

	if config.Email.Sender == "" {
		missingVars = append(missingVars, "EmailSender")
	}
	if config.Email.Password == "" {
		missingVars = append(missingVars, "EmailPassword")
	}
	if len(config.Email.Recipients) == 0 {
		missingVars = append(missingVars, "EmailRecipient")
	}
	if config.Email.SMTPServer == "" {
		missingVars = append(missingVars, "EmailSMTPServer")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("%w: missing required settings: %v", ErrConfig, missingVars)
	}
	if config.Email.SMTPPort <= 0 || config.Email.SMTPPort > 65535 {
		return fmt.Errorf("%w: EmailSMTPPort %d out of range", ErrConfig, config.Email.SMTPPort)
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
