package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{
		ListenAddress:  ":1337",
		RequestTimeout: time.Second,
		LogLevel:       "info",
	}
	assert.NoError(t, valid.Validate())

	testCases := []struct {
		desc   string
		modify func(*Config)
	}{
		{desc: "no address", modify: func(c *Config) { c.ListenAddress = "" }},
		{desc: "negative conns", modify: func(c *Config) { c.MaxConns = -1 }},
		{desc: "no request timeout", modify: func(c *Config) { c.RequestTimeout = 0 }},
		{desc: "metrics port too big", modify: func(c *Config) { c.MetricsPort = 70000 }},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			cfg := valid
			tC.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
