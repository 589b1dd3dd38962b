package config

import (
	"fmt"
	"strings"
	"time"
)

type LLMConfig struct {
	APIKey      string        `koanf:"apikey"`
	Model       string        `koanf:"model"`
	Temperature float32       `koanf:"temperature"`
	Timeout     time.Duration `koanf:"timeout"`
	Summarize   bool          `koanf:"summarize"`
}

const defaultModel = "openai/gpt-4o-mini"

// String returns a string representation of the LLM configuration.
func (c *LLMConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- LLM ---\n")
	b.WriteString(fmt.Sprintf("  apikey: %s\n", MaskSecret(c.APIKey)))
	b.WriteString(fmt.Sprintf("  model: %s\n", c.Model))
	b.WriteString(fmt.Sprintf("  temperature: %.2f\n", c.Temperature))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	b.WriteString(fmt.Sprintf("  summarize: %t\n", c.Summarize))
	return b.String()
}

func (c *LLMConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("LLM api key is not configured")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("LLM timeout must be greater than 0")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("LLM temperature must be between 0 and 2")
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	return nil
}
