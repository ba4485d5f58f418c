/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/facebook/linkmgr/caps"
	"github.com/facebook/linkmgr/link"
)

const sampleConfig = `
monitoring_port: 5000
auto_up: true
backend:
  kind: serial
  path: /dev/ttyUSB0
link:
  up_timeout: 10s
  options: autoneg
policy:
  fec:
    ucw_down_limit: 5
groups:
  - dev: 0
    num: 1
    furcation: 2
    llr: true
    netdevs: [eth1, eth2]
    cable:
      present: true
      supported: true
  - dev: 0
    num: 2
    tech: ck_200g
    options: serdes-loopback
`

func writeConfig(t *testing.T, data string) string {
	p := filepath.Join(t.TempDir(), "linkmgrd.yaml")
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
	return p
}

func TestDefaultConfigNeedsGroups(t *testing.T) {
	cfg := DefaultConfig()
	require.ErrorContains(t, cfg.Validate(), "at least one port group")
	cfg.Groups = []GroupConfig{{Num: 0}}
	cfg.Groups[0].applyDefaults()
	require.NoError(t, cfg.Validate())
}

func TestReadConfig(t *testing.T) {
	cfg, err := ReadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, 5000, cfg.MonitoringPort)
	require.True(t, cfg.AutoUp)
	require.Equal(t, BackendConfig{Kind: BackendSerial, Path: "/dev/ttyUSB0", Size: 0x1000000, LoopTimeNs: 600}, cfg.Backend)
	require.Equal(t, 10*time.Second, cfg.Link.UpTimeout)
	require.Equal(t, link.DefaultConfig().MaxUpTries, cfg.Link.MaxUpTries)
	require.Equal(t, int32(5), cfg.Policy.FEC.UCWDownLimit)
	require.Equal(t, link.DefaultPolicy().FEC.DownChances, cfg.Policy.FEC.DownChances)
	require.Len(t, cfg.Groups, 2)

	g := cfg.Groups[0]
	require.Equal(t, caps.FurcationX2, g.Furcation)
	require.Equal(t, []string{"eth1", "eth2"}, g.Netdevs)
	require.True(t, g.Cable.Present)
	require.Equal(t, uint8(8), g.Core.NumLanes)
	lc := cfg.LinkConfig(&g)
	require.Equal(t, link.OptAutoneg, lc.Options)
	require.NotZero(t, lc.Caps.HPE&caps.HPELLR)

	g = cfg.Groups[1]
	require.Equal(t, caps.FurcationX1, g.Furcation)
	lc = cfg.LinkConfig(&g)
	require.Equal(t, link.OptSerdesLoopback, lc.Options)
	require.Equal(t, caps.TechCK200G, lc.Caps.Tech)
	require.Zero(t, lc.Caps.HPE&caps.HPELLR)

	require.Equal(t, map[link.ID]string{
		{Dev: 0, Group: 1, Num: 0}: "eth1",
		{Dev: 0, Group: 1, Num: 1}: "eth2",
	}, cfg.NetdevNames())
}

func TestReadConfigErrors(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	_, err = ReadConfig(writeConfig(t, "groups: [\n"))
	require.Error(t, err)
	_, err = ReadConfig(writeConfig(t, "link:\n  options: warp\n"))
	require.Error(t, err)
}

func TestPrepareConfig(t *testing.T) {
	p := writeConfig(t, sampleConfig)
	cfg, err := PrepareConfig(p, 6000, time.Second, false, map[string]bool{"monitoringport": true, "autoup": true})
	require.NoError(t, err)
	require.Equal(t, 6000, cfg.MonitoringPort)
	require.False(t, cfg.AutoUp)
	require.Equal(t, time.Minute, cfg.Interval)

	_, err = PrepareConfig("", 6000, time.Second, false, map[string]bool{})
	require.ErrorContains(t, err, "validating config")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
		err  string
	}{
		{"monitoring port", func(c *Config) { c.MonitoringPort = -1 }, "monitoring_port"},
		{"interval", func(c *Config) { c.Interval = 0 }, "interval"},
		{"fault poll", func(c *Config) { c.FaultPollInterval = 0 }, "fault_poll_interval"},
		{"parallelism", func(c *Config) { c.UpParallelism = 0 }, "up_parallelism"},
		{"backend kind", func(c *Config) { c.Backend.Kind = "pcie" }, "backend"},
		{"mmap without path", func(c *Config) { c.Backend.Kind = BackendMmap }, "mmap backend needs path"},
		{"serial without path", func(c *Config) { c.Backend.Kind = BackendSerial }, "serial backend needs path"},
		{"timing", func(c *Config) { c.Timing.TxCheckTries = 0 }, "timing"},
		{"link", func(c *Config) { c.Link.MaxUpTries = 0 }, "link"},
		{"llr", func(c *Config) { c.LLR.SetupTimeout = 0 }, "llr"},
		{"duplicate group", func(c *Config) { c.Groups = append(c.Groups, c.Groups[0]) }, "specified twice"},
		{"furcation", func(c *Config) { c.Groups[0].Furcation = 3 }, "furcation"},
		{"netdevs", func(c *Config) { c.Groups[0].Netdevs = []string{"a", "b"} }, "netdevs"},
		{"core", func(c *Config) { c.Groups[0].Core.NumLanes = 9 }, "num_lanes"},
		{"group tech", func(c *Config) { c.Groups[0].Tech = 1 }, "tech map"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Groups = []GroupConfig{{Num: 3}}
			cfg.Groups[0].applyDefaults()
			tt.mod(cfg)
			require.ErrorContains(t, cfg.Validate(), tt.err)
		})
	}
}
