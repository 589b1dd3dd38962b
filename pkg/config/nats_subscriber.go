package config

import (
	"fmt"
	"strings"
	"time"
)

// SchedulerConfig describes the JetStream stream that carries deferred batch jobs.
type SchedulerConfig struct {
	Stream  string `koanf:"stream"`
	Subject string `koanf:"subject"`
	Bucket  string `koanf:"bucket"`
}

// String returns a string representation of the scheduler configuration.
func (c *SchedulerConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Scheduler ---\n")
	b.WriteString(fmt.Sprintf("  stream: %s\n", c.Stream))
	b.WriteString(fmt.Sprintf("  subject: %s\n", c.Subject))
	b.WriteString(fmt.Sprintf("  bucket: %s\n", c.Bucket))
	return b.String()
}

func (c *SchedulerConfig) Validate() error {
	if c.Stream == "" {
		return fmt.Errorf("SchedulerConfig: stream is not configured")
	}
	if c.Subject == "" {
		return fmt.Errorf("SchedulerConfig: subject is not configured")
	}
	if c.Bucket == "" {
		return fmt.Errorf("SchedulerConfig: bucket is not configured")
	}
	return nil
}

// SubscriberConfig configures the job consumer. The worker always runs a single
// fetch loop, so there is no workers setting.
type SubscriberConfig struct {
	Stream   string        `koanf:"stream"`
	Subject  string        `koanf:"subject"`
	Consumer string        `koanf:"consumer"`
	Bucket   string        `koanf:"bucket"`
	Timeout  time.Duration `koanf:"timeout"`
	Interval time.Duration `koanf:"interval"`
	AckWait  time.Duration `koanf:"ackwait"`
}

// String returns a string representation of the NATS Subscriber configuration.
func (c *SubscriberConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- NATS Subscriber ---\n")
	b.WriteString(fmt.Sprintf("  stream: %s\n", c.Stream))
	b.WriteString(fmt.Sprintf("  subject: %s\n", c.Subject))
	b.WriteString(fmt.Sprintf("  consumer: %s\n", c.Consumer))
	b.WriteString(fmt.Sprintf("  bucket: %s\n", c.Bucket))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	b.WriteString(fmt.Sprintf("  interval: %s\n", c.Interval))
	b.WriteString(fmt.Sprintf("  ackwait: %s\n", c.AckWait))
	return b.String()
}

func (c *SubscriberConfig) Validate() error {
	if c.Stream == "" {
		return fmt.Errorf("SubscriberConfig: Stream is not configured")
	}
	if c.Subject == "" {
		return fmt.Errorf("SubscriberConfig: Subject is not configured")
	}
	if c.Consumer == "" {
		return fmt.Errorf("SubscriberConfig: consumer is not configured")
	}
	if c.Bucket == "" {
		return fmt.Errorf("SubscriberConfig: bucket is not configured")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("SubscriberConfig: timeout must be greater than zero")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("SubscriberConfig: interval must be greater than zero")
	}
	if c.AckWait <= 0 {
		return fmt.Errorf("SubscriberConfig: ackwait must be greater than zero")
	}
	return nil
}
