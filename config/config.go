// Package config loads server configuration from config.yml, a .env file
// and the environment, in increasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gotify/configor"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Configuration struct {
	App struct {
		ListenAddr  string `default:"" env:"APP_HOST"`
		Port        int    `default:"8080" env:"APP_PORT"`
		CORSOrigins string `default:"*" env:"APP_CORS_ORIGINS"`
	}
	Log struct {
		Level string `default:"info" env:"LOG_LEVEL"`
	}
	Store struct {
		Driver string `default:"sqlite" env:"STORE_DRIVER"` // memory | sqlite | mongo
	}
	Sqlite struct {
		Path string `default:"leave.db" env:"SQLITE_PATH"`
	}
	Mongo struct {
		URI            string `default:"mongodb://localhost:27017" env:"MONGO_URI"`
		Database       string `default:"leave-engine" env:"MONGO_DATABASE"`
		TimeoutSeconds int    `default:"10" env:"MONGO_TIMEOUT_SECONDS"`
	}
	Credit struct {
		Enabled *bool  `default:"true" env:"CREDIT_ENABLED"`
		Rule    string `default:"FREQ=MONTHLY;BYMONTHDAY=1;BYHOUR=0;BYMINUTE=5;BYSECOND=0" env:"CREDIT_RULE"`
	}
	Smtp struct {
		User       string `default:"" env:"SMTP_USER"`
		Password   string `default:"" env:"SMTP_PASSWORD"`
		Host       string `default:"" env:"SMTP_HOST"`
		Port       string `default:"" env:"SMTP_PORT"`
		From       string `default:"" env:"SMTP_FROM"`
		TLSEnabled *bool  `default:"true" env:"SMTP_TLS_ENABLED"`
	}
}

func configFiles() []string {
	return []string{"config.yml"}
}

// Load reads the configuration. A missing .env or config.yml is not an error.
func Load(files ...string) (*Configuration, error) {
	_ = godotenv.Load()

	if len(files) == 0 {
		files = configFiles()
	}
	conf := new(Configuration)
	if err := configor.New(&configor.Config{}).Load(conf, files...); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Configuration) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite", "mongo":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.App.Port <= 0 {
		return fmt.Errorf("invalid port %d", c.App.Port)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

func (c *Configuration) Addr() string {
	return fmt.Sprintf("%s:%d", c.App.ListenAddr, c.App.Port)
}

func (c *Configuration) MongoTimeout() time.Duration {
	return time.Duration(c.Mongo.TimeoutSeconds) * time.Second
}

func (c *Configuration) CreditEnabled() bool {
	return c.Credit.Enabled == nil || *c.Credit.Enabled
}

func (c *Configuration) SmtpTLS() bool {
	return c.Smtp.TLSEnabled != nil && *c.Smtp.TLSEnabled
}

// Origins splits the comma separated CORS origin list.
func (c *Configuration) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.App.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// NewLogger builds the JSON logger used by every component.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "@timestamp",
			logrus.FieldKeyMsg:  "message",
		},
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}
