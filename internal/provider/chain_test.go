package provider

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-intel/internal/config"
)

func testProvidersConfig() config.ProvidersConfig {
	return config.ProvidersConfig{
		Order:       []string{"webresearch", "contactfinder"},
		TimeoutSecs: 30,
		RatePerSec:  2,
		Burst:       2,
	}
}

func TestLoadChain(t *testing.T) {
	yml := `
defaults:
  timeout_secs: 20
  rate_per_sec: 1
  burst: 1
providers:
  - name: contactfinder
    rate_per_sec: 5
    burst: 5
  - name: webresearch
    timeout_secs: 45
  - name: legacy
    disabled: true
`
	path := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	chain, err := LoadChain(path, testProvidersConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"contactfinder", "webresearch"}, chain.Enabled())

	cf := chain.Link("contactfinder")
	assert.Equal(t, 20*time.Second, cf.Timeout())
	assert.Equal(t, 5.0, cf.RatePerSec)
	assert.Equal(t, 5, cf.Burst)

	wr := chain.Link("webresearch")
	assert.Equal(t, 45*time.Second, wr.Timeout())
	assert.Equal(t, 1.0, wr.RatePerSec)

	unknown := chain.Link("other")
	assert.Equal(t, "other", unknown.Name)
	assert.Equal(t, 20, unknown.TimeoutSecs)
}

func TestLoadChain_MissingFile(t *testing.T) {
	chain, err := LoadChain(filepath.Join(t.TempDir(), "nope.yaml"), testProvidersConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"webresearch", "contactfinder"}, chain.Enabled())
	assert.Equal(t, 30*time.Second, chain.Link("webresearch").Timeout())
	assert.Equal(t, 2.0, chain.Link("contactfinder").RatePerSec)
}

func TestLoadChain_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("providers: [\n"), 0o644))

	_, err := LoadChain(path, testProvidersConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider: parse chain")
}

func TestLoadChain_NoLinksUsesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("defaults:\n  timeout_secs: 5\n"), 0o644))

	chain, err := LoadChain(path, testProvidersConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"webresearch", "contactfinder"}, chain.Enabled())
	assert.Equal(t, 5*time.Second, chain.Link("webresearch").Timeout())
}
