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
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"

	"github.com/facebook/linkmgr/caps"
	"github.com/facebook/linkmgr/link"
	"github.com/facebook/linkmgr/llr"
	"github.com/facebook/linkmgr/serdes"
)

// Register access backends
const (
	BackendMemory = "memory"
	BackendMmap   = "mmap"
	BackendSerial = "serial"
)

// BackendConfig describes how registers are reached
type BackendConfig struct {
	Kind string `yaml:"kind"`
	// Path is the BAR resource file for mmap or the tty for serial
	Path string `yaml:"path"`
	// PCI address of the device, used to find the resource file when Path is empty
	PCI  string `yaml:"pci"`
	BAR  int    `yaml:"bar"`
	Size int    `yaml:"size"`
	// LoopTimeNs is the loop time the memory backend simulates
	LoopTimeNs uint64 `yaml:"loop_time_ns"`
}

// Validate BackendConfig is sane
func (c *BackendConfig) Validate() error {
	switch c.Kind {
	case BackendMemory:
	case BackendMmap:
		if c.Path == "" && c.PCI == "" {
			return fmt.Errorf("mmap backend needs path or pci")
		}
		if c.Size <= 0 {
			return fmt.Errorf("mmap backend size must be positive")
		}
	case BackendSerial:
		if c.Path == "" {
			return fmt.Errorf("serial backend needs path")
		}
	default:
		return fmt.Errorf("kind must be either %q, %q or %q", BackendMemory, BackendMmap, BackendSerial)
	}
	return nil
}

// GroupConfig describes one port group
type GroupConfig struct {
	Dev       uint8             `yaml:"dev"`
	Num       uint8             `yaml:"num"`
	Furcation caps.Furcation    `yaml:"furcation"`
	Swizzle   string            `yaml:"swizzle"` // INI file with the lane swizzle, identity when empty
	Core      serdes.CoreConfig `yaml:"core"`
	Cable     link.Cable        `yaml:"cable"`
	// Netdevs are kernel interfaces following the links, by link number
	Netdevs []string `yaml:"netdevs"`
	LLR     bool     `yaml:"llr"`
	// Options and Tech replace the daemon wide link config when set
	Options link.Option `yaml:"options"`
	Tech    caps.Tech   `yaml:"tech"`
}

func (g *GroupConfig) String() string {
	return fmt.Sprintf("group %d/%d", g.Dev, g.Num)
}

// Validate GroupConfig is sane
func (g *GroupConfig) Validate() error {
	if g.Furcation.Links() == 0 || g.Furcation.LaneMap(0) == 0 {
		return fmt.Errorf("furcation must be 1, 2 or 4")
	}
	if len(g.Netdevs) > g.Furcation.Links() {
		return fmt.Errorf("%d netdevs for %d links", len(g.Netdevs), g.Furcation.Links())
	}
	if err := g.Core.Validate(); err != nil {
		return fmt.Errorf("core: %w", err)
	}
	return nil
}

// applyDefaults fills fields yaml left zero
func (g *GroupConfig) applyDefaults() {
	def := serdes.DefaultCoreConfig()
	if g.Furcation == 0 {
		g.Furcation = caps.FurcationX1
	}
	if g.Core.NumLanes == 0 {
		g.Core.NumLanes = def.NumLanes
	}
	if g.Core.NumPLLs == 0 {
		g.Core.NumPLLs = def.NumPLLs
	}
	if g.Core.StackSize == 0 {
		g.Core.StackSize = def.StackSize
	}
}

// LinkConfig returns the link config of the group
func (c *Config) LinkConfig(g *GroupConfig) link.Config {
	lc := c.Link
	if g.Options != 0 {
		lc.Options = g.Options
	}
	if g.Tech != 0 {
		lc.Caps.Tech = g.Tech
	}
	if g.LLR {
		lc.Caps.HPE |= caps.HPELLR
	}
	return lc
}

// Config specifies linkmgrd run options
type Config struct {
	MonitoringPort    int           `yaml:"monitoring_port"`
	ListenAddress     string        `yaml:"listen_address"`
	Interval          time.Duration `yaml:"interval"` // how often sys stats are collected
	FaultPollInterval time.Duration `yaml:"fault_poll_interval"`
	AutonegInterval   time.Duration `yaml:"autoneg_interval"`
	// AutoUp brings every link up on start
	AutoUp        bool          `yaml:"auto_up"`
	UpParallelism int           `yaml:"up_parallelism"`
	UpWait        time.Duration `yaml:"up_wait"` // how long start waits for links before reporting ready
	Netdev        bool          `yaml:"netdev"` // follow link state on netdevs
	Backend       BackendConfig `yaml:"backend"`
	Timing        serdes.Timing `yaml:"timing"`
	Link          link.Config   `yaml:"link"`
	Policy        link.Policy   `yaml:"policy"`
	LLR           llr.Config    `yaml:"llr"`
	LLRPolicy     llr.Policy    `yaml:"llr_policy"`
	Groups        []GroupConfig `yaml:"groups"`
}

// DefaultConfig returns Config initialized with default values
func DefaultConfig() *Config {
	return &Config{
		MonitoringPort:    4270,
		ListenAddress:     "::",
		Interval:          time.Minute,
		FaultPollInterval: 100 * time.Millisecond,
		AutonegInterval:   10 * time.Millisecond,
		UpParallelism:     8,
		UpWait:            time.Minute,
		Backend: BackendConfig{
			Kind:       BackendMemory,
			Size:       0x1000000,
			LoopTimeNs: 600,
		},
		Timing: serdes.DefaultTiming(),
		Link:   link.DefaultConfig(),
		Policy: link.DefaultPolicy(),
		LLR:    llr.DefaultConfig(),
	}
}

// Validate config is sane
func (c *Config) Validate() error {
	if c.MonitoringPort < 0 {
		return fmt.Errorf("monitoring_port must be 0 or positive")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be greater than zero")
	}
	if c.FaultPollInterval <= 0 {
		return fmt.Errorf("fault_poll_interval must be greater than zero")
	}
	if c.AutonegInterval <= 0 {
		return fmt.Errorf("autoneg_interval must be greater than zero")
	}
	if c.UpParallelism <= 0 {
		return fmt.Errorf("up_parallelism must be greater than zero")
	}
	if c.UpWait < 0 {
		return fmt.Errorf("up_wait must be 0 or positive")
	}
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("invalid backend config: %w", err)
	}
	if err := c.Timing.Validate(); err != nil {
		return fmt.Errorf("invalid timing config: %w", err)
	}
	if err := c.Link.Validate(); err != nil {
		return fmt.Errorf("invalid link config: %w", err)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("invalid policy config: %w", err)
	}
	if err := c.LLR.Validate(); err != nil {
		return fmt.Errorf("invalid llr config: %w", err)
	}
	if len(c.Groups) == 0 {
		return fmt.Errorf("at least one port group must be specified")
	}
	seen := map[[2]uint8]bool{}
	for i := range c.Groups {
		g := &c.Groups[i]
		if seen[[2]uint8{g.Dev, g.Num}] {
			return fmt.Errorf("%s specified twice", g)
		}
		seen[[2]uint8{g.Dev, g.Num}] = true
		if err := g.Validate(); err != nil {
			return fmt.Errorf("invalid %s config: %w", g, err)
		}
		lc := c.LinkConfig(g)
		if err := lc.Validate(); err != nil {
			return fmt.Errorf("invalid %s link config: %w", g, err)
		}
	}
	return nil
}

// ReadConfig reads config from the file
func ReadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	cData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	err = yaml.Unmarshal(cData, &c)
	if err != nil {
		return nil, err
	}
	for i := range c.Groups {
		c.Groups[i].applyDefaults()
	}

	return c, nil
}

// PrepareConfig prepares final version of config based on defaults, CLI flags and on-disk config, and validates resulting config
func PrepareConfig(cfgPath string, monitoringPort int, interval time.Duration, autoUp bool, setFlags map[string]bool) (*Config, error) {
	cfg := DefaultConfig()
	var err error
	warn := func(name string) {
		log.Warningf("overriding %s from CLI flag", name)
	}
	if cfgPath != "" {
		cfg, err = ReadConfig(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("reading config from %q: %w", cfgPath, err)
		}
	}
	if setFlags["monitoringport"] {
		warn("monitoringPort")
		cfg.MonitoringPort = monitoringPort
	}
	if setFlags["interval"] {
		warn("interval")
		cfg.Interval = interval
	}
	if setFlags["autoup"] {
		warn("autoUp")
		cfg.AutoUp = autoUp
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	log.Debugf("config: %+v", cfg)
	return cfg, nil
}
