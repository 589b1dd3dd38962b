package config

import (
	"fmt"
	"strings"
)

type MailgunConfig struct {
	Domain  string `koanf:"domain"`
	APIKey  string `koanf:"apikey"`
	From    string `koanf:"from"`
	APIBase string `koanf:"apibase"`
}

// String returns a string representation of the Mailgun configuration.
func (c *MailgunConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Mailgun ---\n")
	b.WriteString(fmt.Sprintf("  domain: %s\n", c.Domain))
	b.WriteString(fmt.Sprintf("  apikey: %s\n", MaskSecret(c.APIKey)))
	b.WriteString(fmt.Sprintf("  from: %s\n", c.From))
	b.WriteString(fmt.Sprintf("  apibase: %s\n", c.APIBase))
	return b.String()
}

func (c *MailgunConfig) Validate() error {
	if c.Domain == "" {
		return fmt.Errorf("mailgun domain is not configured")
	}
	if c.APIKey == "" {
		return fmt.Errorf("mailgun api key is not configured")
	}
	if c.From == "" {
		return fmt.Errorf("mailgun sender address is not configured")
	}
	return nil
}
