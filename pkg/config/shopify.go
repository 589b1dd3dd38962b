package config

import (
	"fmt"
	"strings"
	"time"
)

// ShopifyConfig holds the Admin REST API connection settings.
type ShopifyConfig struct {
	Store             string        `koanf:"store"`
	AccessToken       string        `koanf:"accesstoken"`
	APIVersion        string        `koanf:"apiversion"`
	BaseURL           string        `koanf:"baseurl"`
	Timeout           time.Duration `koanf:"timeout"`
	PageSize          int           `koanf:"pagesize"`
	RequestsPerSecond float64       `koanf:"requestspersecond"`
}

const (
	defaultShopifyAPIVersion = "2024-10"
	defaultShopifyPageSize   = 250
)

// String returns a string representation of the Shopify configuration.
func (c *ShopifyConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Shopify ---\n")
	b.WriteString(fmt.Sprintf("  store: %s\n", c.Store))
	b.WriteString(fmt.Sprintf("  accesstoken: %s\n", MaskSecret(c.AccessToken)))
	b.WriteString(fmt.Sprintf("  apiversion: %s\n", c.APIVersion))
	b.WriteString(fmt.Sprintf("  baseurl: %s\n", c.BaseURL))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	b.WriteString(fmt.Sprintf("  pagesize: %d\n", c.PageSize))
	b.WriteString(fmt.Sprintf("  requestspersecond: %.2f\n", c.RequestsPerSecond))
	return b.String()
}

func (c *ShopifyConfig) Validate() error {
	if c.Store == "" && c.BaseURL == "" {
		return fmt.Errorf("shopify store is not configured")
	}
	if c.AccessToken == "" {
		return fmt.Errorf("shopify access token is not configured")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("shopify timeout must be greater than 0")
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("shopify requests per second must be greater than 0")
	}
	if c.APIVersion == "" {
		c.APIVersion = defaultShopifyAPIVersion
	}
	if c.PageSize <= 0 || c.PageSize > defaultShopifyPageSize {
		c.PageSize = defaultShopifyPageSize
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://" + c.Store
	}
	return nil
}
