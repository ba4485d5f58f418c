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
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/facebook/linkmgr/link"
	"github.com/facebook/linkmgr/llr"
	"github.com/facebook/linkmgr/regio"
	"github.com/facebook/linkmgr/serdes"
)

// Backend is the register access of the daemon
type Backend struct {
	regio.Access
	closer io.Closer
	mem    *regio.Memory
}

// OpenBackend opens register access described by cfg
func OpenBackend(cfg BackendConfig) (*Backend, error) {
	switch cfg.Kind {
	case BackendMemory:
		m := regio.NewMemory()
		return &Backend{Access: m, mem: m}, nil
	case BackendMmap:
		path := cfg.Path
		if path == "" {
			path = regio.PCIResourcePath(cfg.PCI, cfg.BAR)
		}
		mm, err := regio.OpenMmap(path, cfg.Size)
		if err != nil {
			return nil, err
		}
		return &Backend{Access: regio.NewLocked(mm), closer: mm}, nil
	case BackendSerial:
		s, err := regio.OpenSerial(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &Backend{Access: regio.NewLocked(s), closer: s}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Kind)
}

// Memory returns the register file of the memory backend, nil for hardware backends
func (b *Backend) Memory() *regio.Memory {
	return b.mem
}

// Close releases the backend
func (b *Backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

// Simulate makes the memory backend behave as healthy hardware for every configured group
func Simulate(m *regio.Memory, cfg *Config) {
	for i := range cfg.Groups {
		g := &cfg.Groups[i]
		serdes.NewSim(m, g.Core.DevID, g.Num)
		for n := 0; n < g.Furcation.Links(); n++ {
			link.SimulatePCS(m, g.Num, uint8(n))
			llr.Simulate(m, g.Num, uint8(n), cfg.Backend.LoopTimeNs)
		}
		log.Infof("%s: simulated on memory backend", g)
	}
}

// Build creates the link registry over register access a
func Build(cfg *Config, a regio.Access) (*link.Manager, error) {
	m := link.NewManager()
	for i := range cfg.Groups {
		g, err := buildGroup(cfg, &cfg.Groups[i], a)
		if err == nil {
			err = m.AddGroup(g)
		}
		if err != nil {
			if cerr := m.Close(); cerr != nil {
				log.Errorf("closing partially built registry: %v", cerr)
			}
			return nil, err
		}
	}
	return m, nil
}

func buildGroup(cfg *Config, g *GroupConfig, a regio.Access) (*link.Group, error) {
	var fw *serdes.Firmware
	if g.Core.Firmware != "" {
		var err error
		if fw, err = serdes.LoadFirmware(g.Core.Firmware); err != nil {
			return nil, fmt.Errorf("%s: %w", g, err)
		}
	}
	sw := serdes.IdentitySwizzle(g.Num)
	if g.Swizzle != "" {
		var err error
		if sw, err = serdes.LoadSwizzle(g.Swizzle, g.Num); err != nil {
			return nil, fmt.Errorf("%s: %w", g, err)
		}
	}
	core := serdes.NewCore(a, g.Core, cfg.Timing, fw)
	lanes := serdes.NewLanes(a, core, sw, cfg.Timing)
	lc := cfg.LinkConfig(g)

	return link.NewGroup(g.Dev, g.Num, g.Furcation, func(id link.ID, laneMap uint8, ntf link.Notifier) (*link.Link, error) {
		hw := link.Hardware{
			Core:    core,
			Lanes:   lanes,
			PCS:     link.NewRegPCS(a, g.Num, id.Num),
			Media:   link.StaticMedia(g.Cable),
			Autoneg: link.NewRegAutoneg(a, g.Num, id.Num, cfg.AutonegInterval),
		}
		if g.LLR {
			l := llr.New(id.Dev, id.Group, id.Num, llr.NewRegHardware(a, g.Num, id.Num), ntf)
			if err := l.ConfigSet(cfg.LLR); err != nil {
				return nil, err
			}
			if err := l.PolicySet(cfg.LLRPolicy); err != nil {
				return nil, err
			}
			hw.LLR = l
		}
		l := link.New(id, laneMap, hw, ntf)
		if err := l.ConfigSet(lc); err != nil {
			return nil, err
		}
		if err := l.PolicySet(cfg.Policy); err != nil {
			return nil, err
		}
		log.Debugf("%s: built on lanes 0x%x", l, laneMap)
		return l, nil
	})
}
