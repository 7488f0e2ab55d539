package provider

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/company-intel/internal/config"
)

// Chain is the provider chain configuration: which adapters run, in which
// order their results are applied, and how each call is guarded.
type Chain struct {
	Defaults LinkConfig   `yaml:"defaults"`
	Links    []LinkConfig `yaml:"providers"`
}

// LinkConfig configures one provider in the chain.
type LinkConfig struct {
	Name        string  `yaml:"name"`
	Disabled    bool    `yaml:"disabled"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec"`
	Burst       int     `yaml:"burst"`
}

// Timeout returns the call timeout as a duration.
func (l LinkConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSecs) * time.Second
}

// DefaultChain builds a chain from the application config alone.
func DefaultChain(cfg config.ProvidersConfig) *Chain {
	c := &Chain{
		Defaults: LinkConfig{
			TimeoutSecs: cfg.TimeoutSecs,
			RatePerSec:  cfg.RatePerSec,
			Burst:       cfg.Burst,
		},
	}
	for _, name := range cfg.Order {
		c.Links = append(c.Links, LinkConfig{Name: name})
	}
	c.applyDefaults()
	return c
}

// LoadChain reads the chain from a YAML file. A missing file falls back to
// DefaultChain.
func LoadChain(path string, cfg config.ProvidersConfig) (*Chain, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultChain(cfg), nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "provider: read chain %s", path)
	}

	c := &Chain{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, eris.Wrap(err, "provider: parse chain")
	}
	if c.Defaults.TimeoutSecs == 0 {
		c.Defaults.TimeoutSecs = cfg.TimeoutSecs
	}
	if c.Defaults.RatePerSec == 0 {
		c.Defaults.RatePerSec = cfg.RatePerSec
	}
	if c.Defaults.Burst == 0 {
		c.Defaults.Burst = cfg.Burst
	}
	if len(c.Links) == 0 {
		for _, name := range cfg.Order {
			c.Links = append(c.Links, LinkConfig{Name: name})
		}
	}
	c.applyDefaults()
	return c, nil
}

func (c *Chain) applyDefaults() {
	if c.Defaults.TimeoutSecs <= 0 {
		c.Defaults.TimeoutSecs = 30
	}
	for i := range c.Links {
		l := &c.Links[i]
		if l.TimeoutSecs == 0 {
			l.TimeoutSecs = c.Defaults.TimeoutSecs
		}
		if l.RatePerSec == 0 {
			l.RatePerSec = c.Defaults.RatePerSec
		}
		if l.Burst == 0 {
			l.Burst = c.Defaults.Burst
		}
	}
}

// Enabled returns the names of enabled links in chain order.
func (c *Chain) Enabled() []string {
	var names []string
	for _, l := range c.Links {
		if !l.Disabled {
			names = append(names, l.Name)
		}
	}
	return names
}

// Link returns the config for a provider, falling back to defaults.
func (c *Chain) Link(name string) LinkConfig {
	for _, l := range c.Links {
		if l.Name == name {
			return l
		}
	}
	d := c.Defaults
	d.Name = name
	return d
}
