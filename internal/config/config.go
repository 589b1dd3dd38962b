// Package config composes the per-concern settings each binary loads.
package config

import (
	"strings"

	"github.com/abgdnv/shopassist/pkg/config"
	"github.com/abgdnv/shopassist/pkg/config/configloader"
)

var (
	_ configloader.Validator = (*Config)(nil)
	_ configloader.Validator = (*WorkerConfig)(nil)
	_ configloader.Validator = (*ChatConfig)(nil)
)

// Catalog is everything needed to talk to the store and pace calls against it.
type Catalog struct {
	Shopify    config.ShopifyConfig    `koanf:"shopify"`
	Resilience config.ResilienceConfig `koanf:"resilience"`
	Cache      config.CacheConfig      `koanf:"cache"`
}

func (c *Catalog) String() string {
	var b strings.Builder
	b.WriteString(c.Shopify.String())
	b.WriteString(c.Resilience.String())
	b.WriteString(c.Cache.String())
	return b.String()
}

func (c *Catalog) Validate() error {
	if err := c.Shopify.Validate(); err != nil {
		return err
	}
	if err := c.Resilience.Validate(); err != nil {
		return err
	}
	return c.Cache.Validate()
}

// Config is the HTTP API configuration.
type Config struct {
	Catalog    `koanf:",squash"`
	HTTPServer config.HTTPConfig      `koanf:"server"`
	Auth       config.AuthConfig      `koanf:"auth"`
	Database   config.DatabaseConfig  `koanf:"database"`
	LLM        config.LLMConfig       `koanf:"llm"`
	Mailgun    config.MailgunConfig   `koanf:"mailgun"`
	Nats       config.NATSConfig      `koanf:"nats"`
	Scheduler  config.SchedulerConfig `koanf:"scheduler"`
	Telemetry  config.TelemetryConfig `koanf:"telemetry"`
	Log        config.LogConfig       `koanf:"log"`
	PProf      config.PProfConfig     `koanf:"pprof"`
	Shutdown   config.ShutdownConfig  `koanf:"shutdown"`
}

func (c *Config) String() string {
	var b strings.Builder
	b.WriteString(c.HTTPServer.String())
	b.WriteString(c.Auth.String())
	b.WriteString(c.Database.String())
	b.WriteString(c.Catalog.String())
	b.WriteString(c.LLM.String())
	b.WriteString(c.Mailgun.String())
	b.WriteString(c.Nats.String())
	b.WriteString(c.Scheduler.String())
	b.WriteString(c.Telemetry.String())
	b.WriteString(c.Log.String())
	b.WriteString(c.PProf.String())
	b.WriteString(c.Shutdown.String())
	return b.String()
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	validators := []configloader.Validator{
		&c.HTTPServer, &c.Auth, &c.Database, &c.Catalog, &c.LLM, &c.Mailgun,
		&c.Nats, &c.Scheduler, &c.Telemetry, &c.Log, &c.PProf, &c.Shutdown,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// WorkerConfig is the deferred job worker configuration.
type WorkerConfig struct {
	Catalog    `koanf:",squash"`
	Database   config.DatabaseConfig   `koanf:"database"`
	Nats       config.NATSConfig       `koanf:"nats"`
	Scheduler  config.SchedulerConfig  `koanf:"scheduler"`
	Subscriber config.SubscriberConfig `koanf:"subscriber"`
	Telemetry  config.TelemetryConfig  `koanf:"telemetry"`
	Log        config.LogConfig        `koanf:"log"`
	PProf      config.PProfConfig      `koanf:"pprof"`
	Probes     config.ProbesConfig     `koanf:"probes"`
	Shutdown   config.ShutdownConfig   `koanf:"shutdown"`
}

func (c *WorkerConfig) String() string {
	var b strings.Builder
	b.WriteString(c.Database.String())
	b.WriteString(c.Catalog.String())
	b.WriteString(c.Nats.String())
	b.WriteString(c.Scheduler.String())
	b.WriteString(c.Subscriber.String())
	b.WriteString(c.Telemetry.String())
	b.WriteString(c.Log.String())
	b.WriteString(c.PProf.String())
	b.WriteString(c.Probes.String())
	b.WriteString(c.Shutdown.String())
	return b.String()
}

func (c *WorkerConfig) Validate() error {
	validators := []configloader.Validator{
		&c.Database, &c.Catalog, &c.Nats, &c.Scheduler, &c.Subscriber,
		&c.Telemetry, &c.Log, &c.PProf, &c.Probes, &c.Shutdown,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ChatConfig is the terminal chat configuration. It needs no database: the chat
// creates products directly and hands update batches to the worker.
type ChatConfig struct {
	Catalog   `koanf:",squash"`
	LLM       config.LLMConfig       `koanf:"llm"`
	Mailgun   config.MailgunConfig   `koanf:"mailgun"`
	Nats      config.NATSConfig      `koanf:"nats"`
	Scheduler config.SchedulerConfig `koanf:"scheduler"`
	Log       config.LogConfig       `koanf:"log"`
}

func (c *ChatConfig) String() string {
	var b strings.Builder
	b.WriteString(c.Catalog.String())
	b.WriteString(c.LLM.String())
	b.WriteString(c.Mailgun.String())
	b.WriteString(c.Nats.String())
	b.WriteString(c.Scheduler.String())
	b.WriteString(c.Log.String())
	return b.String()
}

func (c *ChatConfig) Validate() error {
	validators := []configloader.Validator{&c.Catalog, &c.LLM, &c.Mailgun, &c.Nats, &c.Scheduler, &c.Log}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
