package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthConfig toggles bearer token verification on the REST API.
type AuthConfig struct {
	Enabled bool `koanf:"enabled"`
	IdP     IdP  `koanf:"idp"`
}

type IdP struct {
	JwksURL     string        `koanf:"jwksurl"`
	Issuer      string        `koanf:"issuer"`
	ClientID    string        `koanf:"clientid"`
	MinInterval time.Duration `koanf:"mininterval"`
}

// String returns a string representation of the auth configuration.
func (c *AuthConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Auth ---\n")
	b.WriteString(fmt.Sprintf("  enabled: %t\n", c.Enabled))
	if c.Enabled {
		b.WriteString(fmt.Sprintf("  idp.jwksurl: %s\n", c.IdP.JwksURL))
		b.WriteString(fmt.Sprintf("  idp.issuer: %s\n", c.IdP.Issuer))
		b.WriteString(fmt.Sprintf("  idp.clientid: %s\n", c.IdP.ClientID))
		b.WriteString(fmt.Sprintf("  idp.mininterval: %s\n", c.IdP.MinInterval))
	}
	return b.String()
}

func (c *AuthConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return c.IdP.Validate()
}

func (c *IdP) Validate() error {
	if c.JwksURL == "" {
		return fmt.Errorf("IdP JWKS URL cannot be empty")
	}
	if c.Issuer == "" {
		return fmt.Errorf("IdP issuer cannot be empty")
	}
	if c.ClientID == "" {
		return fmt.Errorf("IdP client ID cannot be empty")
	}
	if c.MinInterval <= 0 {
		return fmt.Errorf("IdP minimum interval must be greater than zero")
	}
	return nil
}
