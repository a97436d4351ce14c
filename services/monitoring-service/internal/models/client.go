package models

import (
	"fmt"
	"time"
)

// PlatformAccount identifies one ad account of a client.
type PlatformAccount struct {
	Channel        Channel `bson:"channel" json:"channel" yaml:"channel"`
	AccountID      string  `bson:"account_id" json:"account_id" yaml:"account_id"`
	CredentialsRef string  `bson:"credentials_ref" json:"credentials_ref" yaml:"credentials_ref"`
	Enabled        bool    `bson:"enabled" json:"enabled" yaml:"enabled"`
}

type WebsiteConfig struct {
	URL          string   `bson:"url" json:"url" yaml:"url"`
	ExpectedTags []string `bson:"expected_tags,omitempty" json:"expected_tags,omitempty" yaml:"expected_tags"`
}

// ClientMonitoringConfig is supplied by the config provider and never
// mutated by the monitoring core.
type ClientMonitoringConfig struct {
	ClientID     string             `bson:"client_id" json:"client_id"`
	Name         string             `bson:"name" json:"name"`
	Enabled      bool               `bson:"enabled" json:"enabled"`
	Timezone     string             `bson:"timezone,omitempty" json:"timezone,omitempty"`
	Accounts     []PlatformAccount  `bson:"accounts" json:"accounts"`
	Website      *WebsiteConfig     `bson:"website,omitempty" json:"website,omitempty"`
	Thresholds   map[string]float64 `bson:"thresholds,omitempty" json:"thresholds,omitempty"`
	NotifyChatID int64              `bson:"notify_chat_id,omitempty" json:"notify_chat_id,omitempty"`
}

// Location returns the client's timezone, falling back to UTC.
func (c ClientMonitoringConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Threshold returns a per-client override or def.
func (c ClientMonitoringConfig) Threshold(key string, def float64) float64 {
	if v, ok := c.Thresholds[key]; ok {
		return v
	}
	return def
}

// ValidationErrors lists configuration problems that need manual setup.
func (c ClientMonitoringConfig) ValidationErrors() []string {
	var problems []string
	if c.ClientID == "" {
		problems = append(problems, "client id is empty")
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			problems = append(problems, fmt.Sprintf("unknown timezone %q", c.Timezone))
		}
	}
	for i, acc := range c.Accounts {
		if !acc.Enabled {
			continue
		}
		if !acc.Channel.IsAdPlatform() {
			problems = append(problems, fmt.Sprintf("account %d: channel %q is not an ad platform", i, acc.Channel))
		}
		if acc.AccountID == "" {
			problems = append(problems, fmt.Sprintf("account %d (%s): missing account id", i, acc.Channel))
		}
		if acc.CredentialsRef == "" {
			problems = append(problems, fmt.Sprintf("account %d (%s): missing credentials reference", i, acc.Channel))
		}
	}
	if c.Website != nil && c.Website.URL == "" {
		problems = append(problems, "website monitoring enabled without url")
	}
	return problems
}

// EnabledAccounts returns the accounts to monitor in this run.
func (c ClientMonitoringConfig) EnabledAccounts() []PlatformAccount {
	out := make([]PlatformAccount, 0, len(c.Accounts))
	for _, acc := range c.Accounts {
		if acc.Enabled {
			out = append(out, acc)
		}
	}
	return out
}
