// internal/config/config.go
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		DataDir string `yaml:"data_dir"`
	} `yaml:"app"`

	Email struct {
		IMAPHost string `yaml:"imap_host"`
		IMAPPort int    `yaml:"imap_port"`
		Username string `yaml:"username"`
		Mailbox  string `yaml:"mailbox"`
	} `yaml:"email"`

	Telegram struct {
		// Chat ids are registered through the bot itself; only the
		// long-poll timeout lives in config.
		UpdateTimeoutSeconds int `yaml:"update_timeout_seconds"`
	} `yaml:"telegram"`

	Alerts struct {
		HorizonHours int  `yaml:"horizon_hours"`
		MaxEmails    int  `yaml:"max_emails"`
		PersistSeen  bool `yaml:"persist_seen"`
		Verbose      bool `yaml:"verbose"`
	} `yaml:"alerts"`

	Polling struct {
		EmailSeconds int `yaml:"email_seconds"`
	} `yaml:"polling"`
}

func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}
