package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RosterLayout describes where the roster worksheets keep their columns.
// Offsets are zero-based (A=0, B=1, ...) and deployment-specific.
type RosterLayout struct {
	StartRow     int
	SiteCol      int
	NameCol      int
	PhoneCol     int
	AccountIDCol int
}

type Config struct {
	ServerPort int
	DBPath     string

	RedisHost string
	RedisPort int

	// BotToken authenticates outbound attendance notifications.
	BotToken string

	// Roster spreadsheet.
	SpreadsheetID  string
	CredsFile      string
	WorksheetNames []string
	Roster         RosterLayout

	// Local clock for ledger partitions and notification timestamps.
	TZOffset time.Duration
}

// Load reads configuration from the environment. Only SpreadsheetID and
// BotToken may be empty; the subsystems depending on them degrade to no-ops.
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:    envInt("SERVER_PORT", 8080),
		DBPath:        envStr("DB_PATH", "facegate.db"),
		RedisHost:     envStr("REDIS_HOST", "localhost"),
		RedisPort:     envInt("REDIS_PORT", 6379),
		BotToken:      os.Getenv("BOT_TOKEN"),
		SpreadsheetID: os.Getenv("GOOGLE_SPREADSHEET_ID"),
		CredsFile:     envStr("GOOGLE_CREDS_FILE", "google_creds.json"),
		Roster: RosterLayout{
			StartRow:     envInt("ROSTER_START_ROW", 2),
			SiteCol:      envInt("ROSTER_COL_SITE", 1),
			NameCol:      envInt("ROSTER_COL_NAME", 2),
			PhoneCol:     envInt("ROSTER_COL_PHONE", 3),
			AccountIDCol: envInt("ROSTER_COL_ACCOUNT_ID", 4),
		},
		TZOffset: time.Duration(envInt("TZ_OFFSET_HOURS", 5)) * time.Hour,
	}

	cfg.WorksheetNames = splitList(os.Getenv("GOOGLE_WORKSHEET_NAMES"))

	if cfg.Roster.StartRow < 1 {
		return nil, fmt.Errorf("ROSTER_START_ROW must be >= 1, got %d", cfg.Roster.StartRow)
	}
	return cfg, nil
}

// Timezone returns the fixed-offset location used for ledger-local timestamps.
func (c *Config) Timezone() *time.Location {
	return time.FixedZone("local", int(c.TZOffset.Seconds()))
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
