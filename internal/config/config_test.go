package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abgdnv/shopassist/pkg/config/configloader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
server:
  port: 8080
  timeout:
    read: 30s
    write: 120s
    idle: 60s
    readHeader: 5s
database:
  url: postgres://u:p@localhost:5432/assistant
  timeout: 10s
shopify:
  store: example.myshopify.com
  timeout: 30s
  requestspersecond: 2
resilience:
  retry:
    maxretries: 6
    jittermin: 200ms
    jittermax: 500ms
    defaultretryafter: 2s
  circuitbreaker:
    consecutivefailures: 5
    errorratepercent: 50
    opentimeout: 30s
  pacing:
    min: 500ms
    max: 1s
llm:
  timeout: 60s
mailgun:
  domain: mg.example.com
  from: assistant@mg.example.com
nats:
  url: nats://localhost:4222
  timeout: 5s
scheduler:
  stream: BATCH_JOBS
  subject: batches.jobs
  bucket: batch-uploads
subscriber:
  stream: BATCH_JOBS
  subject: batches.jobs
  consumer: batch-worker
  bucket: batch-uploads
  timeout: 5s
  interval: 1s
  ackwait: 1m
shutdown:
  timeout: 10s
`

func writeYAML(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(baseYAML), 0o600))
	return path, filepath.Join(dir, "missing.env")
}

func TestConfig_Load(t *testing.T) {
	// given
	yamlFile, envFile := writeYAML(t)
	t.Setenv("ASSISTANT_SHOPIFY_ACCESSTOKEN", "shpat_secret1234")
	t.Setenv("ASSISTANT_LLM_APIKEY", "sk-or-abcd")
	t.Setenv("ASSISTANT_MAILGUN_APIKEY", "key-wxyz")

	// when
	cfg, err := configloader.LoadFiles[*Config]("assistant", yamlFile, envFile)

	// then
	require.NoError(t, err)
	assert.Equal(t, "shpat_secret1234", cfg.Shopify.AccessToken)
	assert.Equal(t, "https://example.myshopify.com", cfg.Shopify.BaseURL)
	assert.Equal(t, "2024-10", cfg.Shopify.APIVersion)
	assert.Equal(t, 6, cfg.Resilience.Retry.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Resilience.Pacing.Min)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, int64(10<<20), cfg.HTTPServer.MaxUploadBytes)

	out := cfg.String()
	assert.Contains(t, out, "****1234")
	assert.NotContains(t, out, "shpat_secret1234")
	assert.NotContains(t, out, "sk-or-abcd")
	assert.Contains(t, out, "****@localhost:5432/assistant")
}

func TestConfig_MissingSecrets(t *testing.T) {
	testCases := []struct {
		name     string
		env      map[string]string
		expected string
	}{
		{
			name:     "shopify token",
			env:      map[string]string{"ASSISTANT_LLM_APIKEY": "k", "ASSISTANT_MAILGUN_APIKEY": "k"},
			expected: "shopify access token is not configured",
		},
		{
			name:     "llm key",
			env:      map[string]string{"ASSISTANT_SHOPIFY_ACCESSTOKEN": "t", "ASSISTANT_MAILGUN_APIKEY": "k"},
			expected: "LLM api key is not configured",
		},
		{
			name:     "mailgun key",
			env:      map[string]string{"ASSISTANT_SHOPIFY_ACCESSTOKEN": "t", "ASSISTANT_LLM_APIKEY": "k"},
			expected: "mailgun api key is not configured",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			yamlFile, envFile := writeYAML(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			// when
			_, err := configloader.LoadFiles[*Config]("assistant", yamlFile, envFile)

			// then
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expected)
		})
	}
}

func TestWorkerConfig_Load(t *testing.T) {
	// given
	yamlFile, envFile := writeYAML(t)
	t.Setenv("ASSISTANT_SHOPIFY_ACCESSTOKEN", "t")

	// when
	cfg, err := configloader.LoadFiles[*WorkerConfig]("assistant", yamlFile, envFile)

	// then
	require.NoError(t, err)
	assert.Equal(t, "batch-worker", cfg.Subscriber.Consumer)
	assert.Equal(t, "batch-uploads", cfg.Subscriber.Bucket)
	assert.Equal(t, time.Minute, cfg.Subscriber.AckWait)
	assert.Equal(t, "/tmp/ready", cfg.Probes.ReadinessFileName)
}

func TestChatConfig_Load(t *testing.T) {
	// given
	yamlFile, envFile := writeYAML(t)
	t.Setenv("ASSISTANT_SHOPIFY_ACCESSTOKEN", "t")
	t.Setenv("ASSISTANT_LLM_APIKEY", "k")
	t.Setenv("ASSISTANT_MAILGUN_APIKEY", "k")

	// when
	cfg, err := configloader.LoadFiles[*ChatConfig]("assistant", yamlFile, envFile)

	// then
	require.NoError(t, err)
	assert.Equal(t, "batches.jobs", cfg.Scheduler.Subject)
	assert.Equal(t, "batch-uploads", cfg.Scheduler.Bucket)
	assert.Equal(t, "mg.example.com", cfg.Mailgun.Domain)
}
