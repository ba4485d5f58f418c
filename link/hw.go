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

package link

import (
	"context"
	"fmt"
	"time"

	"github.com/facebook/linkmgr/caps"
	"github.com/facebook/linkmgr/fec"
	"github.com/facebook/linkmgr/regio"
	"github.com/facebook/linkmgr/serdes"
)

//go:generate mockgen -source=hw.go -destination=mock_link.go -package=link

// Core is the serdes macro shared by the port group
type Core interface {
	Start(ctx context.Context, clocking serdes.Clocking, sw *serdes.Swizzle) error
	State() serdes.CoreState
}

// Lanes are the serdes lanes of a port group
type Lanes interface {
	Start(ctx context.Context, laneMap uint8, cfg *serdes.LaneParams) error
	Check(ctx context.Context, laneMap uint8, cfg *serdes.LaneParams) error
	MarkUp(laneMap uint8)
	Down(ctx context.Context, laneMap uint8) error
	Swizzle() serdes.Swizzle
	SerdesLanes(laneMap uint8) []uint8
	Status(asic uint8) serdes.LaneStatus
	Eye(s uint8) (upper, lower uint8, err error)
	TxTaps(s uint8) (serdes.Media, error)
}

// PCS is the coding sublayer and MAC of one link
type PCS interface {
	// Start configures PCS for tech and fecMode and starts transmitting
	Start(tech caps.Tech, fecMode caps.FEC) error
	// EnableTx enables PMD transmit on the asic lanes of laneMap
	EnableTx(laneMap uint8) error
	MACStart() error
	// OK reports block lock and alignment
	OK() (bool, error)
	// Faults returns the fault status word of the port group
	Faults() (uint64, error)
	// Stop stops MAC then PCS
	Stop() error
	Reset() error
	Counters() (fec.Counters, error)
}

// Cable describes what is plugged into the port group jack
type Cable struct {
	Present   bool         `yaml:"present" json:"present"`
	Supported bool         `yaml:"supported" json:"supported"`
	Active    bool         `yaml:"active" json:"active"`
	Media     serdes.Media `yaml:"media" json:"media"`
	// ExtendedReach cables need the extended reach receiver mode
	ExtendedReach bool `yaml:"extended_reach" json:"extended_reach"`
}

// Media reports the cable of a port group
type Media interface {
	Cable() (Cable, error)
}

// Autoneg exchanges capabilities with the link partner
type Autoneg interface {
	// Negotiate returns link partner caps
	Negotiate(ctx context.Context, local caps.Caps) (caps.Caps, error)
	Stop() error
}

// StaticMedia is a Media with a fixed cable
type StaticMedia Cable

// Cable implements Media
func (m StaticMedia) Cable() (Cable, error) {
	return Cable(m), nil
}

// PCS and MAC registers, on the status bus
const (
	pcsBase       = 0x8000
	pcsPortStride = 0x100000
	pcsLinkStride = 0x40

	regPCSCfg     = 0x00
	regPCSSts     = 0x08
	regMACCfg     = 0x10
	regFECUCW     = 0x18
	regFECCCW     = 0x20
	regFECGCW     = 0x28
	regANCtl      = 0x30
	regANAdv      = 0x38
	regANAdvNP    = 0x3C
	regANLP       = 0x48
	regANLPNP     = 0x4C
	regPMDTx      = 0x800
	regFaults     = 0x808
	regFECLanes   = 0x1000
	regFECTail    = 0x1200
	fecLaneStride = 0x80

	pcsCfgTech   = 0xFF
	pcsCfgFEC    = 0x3 << 8
	pcsCfgTx     = 1 << 16
	pcsCfgRx     = 1 << 17
	pcsCfgReset  = 1 << 31
	pcsStsLock   = 1 << 0
	pcsStsAlign  = 1 << 1
	macCfgTx     = 1 << 0
	macCfgRx     = 1 << 1
	pmdTxEnables = 0xF
	anCtlStart   = 1 << 0
	anCtlDone    = 1 << 8
	anCtlError   = 1 << 9
	anFECShift   = 32
	anPauseShift = 34
)

// RegPCS drives the PCS and MAC of one link through register access
type RegPCS struct {
	a    regio.Access
	port uint32
	base uint32
	num  uint8
}

// NewRegPCS returns the PCS of link num in port group port
func NewRegPCS(a regio.Access, port, num uint8) *RegPCS {
	p := uint32(port)*pcsPortStride + pcsBase
	return &RegPCS{a: a, port: p, base: p + uint32(num)*pcsLinkStride, num: num}
}

func techCode(t caps.Tech) uint64 {
	switch t.Best() {
	case caps.TechBJ100G:
		return 1
	case caps.TechCD50G:
		return 2
	case caps.TechCD100G:
		return 3
	case caps.TechBS200G:
		return 4
	case caps.TechCK100G:
		return 5
	case caps.TechCK200G:
		return 6
	case caps.TechCK400G:
		return 7
	}
	return 0
}

// Start implements PCS
func (p *RegPCS) Start(tech caps.Tech, fecMode caps.FEC) error {
	code := techCode(tech)
	if code == 0 {
		return fmt.Errorf("pcs: tech %s: %w", tech, ErrConfig)
	}
	v := code | uint64(fecMode&0x3)<<8 | pcsCfgTx | pcsCfgRx
	return p.a.Write(regio.BusStatus, p.base+regPCSCfg, v, pcsCfgTech|pcsCfgFEC|pcsCfgTx|pcsCfgRx|pcsCfgReset)
}

// EnableTx implements PCS
func (p *RegPCS) EnableTx(laneMap uint8) error {
	return p.a.Write(regio.BusStatus, p.port+regPMDTx, uint64(laneMap)&pmdTxEnables, uint64(laneMap)&pmdTxEnables)
}

// MACStart implements PCS
func (p *RegPCS) MACStart() error {
	return p.a.Write(regio.BusStatus, p.base+regMACCfg, macCfgTx|macCfgRx, macCfgTx|macCfgRx)
}

// OK implements PCS
func (p *RegPCS) OK() (bool, error) {
	v, err := p.a.Read(regio.BusStatus, p.base+regPCSSts)
	if err != nil {
		return false, err
	}
	return v&(pcsStsLock|pcsStsAlign) == pcsStsLock|pcsStsAlign, nil
}

// Faults implements PCS
func (p *RegPCS) Faults() (uint64, error) {
	return p.a.Read(regio.BusStatus, p.port+regFaults)
}

// Stop implements PCS
func (p *RegPCS) Stop() error {
	if err := p.a.Write(regio.BusStatus, p.base+regMACCfg, 0, macCfgTx|macCfgRx); err != nil {
		return err
	}
	return p.a.Write(regio.BusStatus, p.base+regPCSCfg, 0, pcsCfgTx|pcsCfgRx)
}

// Reset implements PCS
func (p *RegPCS) Reset() error {
	if err := p.a.Write(regio.BusStatus, p.base+regPCSCfg, pcsCfgReset, pcsCfgReset); err != nil {
		return err
	}
	return p.a.Write(regio.BusStatus, p.base+regPCSCfg, 0, 0)
}

// Counters implements PCS and fec.Source
func (p *RegPCS) Counters() (fec.Counters, error) {
	var c fec.Counters
	var err error
	rd := func(addr uint32) uint64 {
		if err != nil {
			return 0
		}
		var v uint64
		v, err = p.a.Read(regio.BusStatus, addr)
		return v
	}
	c.UCW = rd(p.base + regFECUCW)
	c.CCW = rd(p.base + regFECCCW)
	c.GCW = rd(p.base + regFECGCW)
	lanes := p.port + regFECLanes + uint32(p.num)*fecLaneStride
	for i := range c.Lanes {
		c.Lanes[i] = rd(lanes + uint32(i)*8)
	}
	tail := p.port + regFECTail + uint32(p.num)*fecLaneStride
	for i := range c.Tail {
		c.Tail[i] = rd(tail + uint32(i)*8)
	}
	return c, err
}

// RegAutoneg runs clause 73 style base and next page exchange of one link through register access
type RegAutoneg struct {
	a        regio.Access
	base     uint32
	interval time.Duration
}

// NewRegAutoneg returns the autoneg block of link num in port group port, polled every interval
func NewRegAutoneg(a regio.Access, port, num uint8, interval time.Duration) *RegAutoneg {
	base := uint32(port)*pcsPortStride + pcsBase + uint32(num)*pcsLinkStride
	return &RegAutoneg{a: a, base: base, interval: interval}
}

// Negotiate implements Autoneg
func (n *RegAutoneg) Negotiate(ctx context.Context, local caps.Caps) (caps.Caps, error) {
	adv := uint64(local.Tech) | uint64(local.FEC&0x3)<<anFECShift | uint64(local.Pause&0x3)<<anPauseShift
	if err := n.a.Write(regio.BusStatus, n.base+regANAdv, adv, 0); err != nil {
		return caps.Caps{}, err
	}
	if err := n.a.Write(regio.BusConfig, n.base+regANAdvNP, uint64(local.HPE), 0); err != nil {
		return caps.Caps{}, err
	}
	if err := n.a.Write(regio.BusStatus, n.base+regANCtl, anCtlStart, anCtlStart); err != nil {
		return caps.Caps{}, err
	}
	for {
		ctl, err := n.a.Read(regio.BusStatus, n.base+regANCtl)
		if err != nil {
			return caps.Caps{}, err
		}
		if ctl&anCtlError != 0 {
			return caps.Caps{}, fmt.Errorf("autoneg: exchange error (ctl 0x%x)", ctl)
		}
		if ctl&anCtlDone != 0 {
			break
		}
		select {
		case <-ctx.Done():
			return caps.Caps{}, ctx.Err()
		case <-time.After(n.interval):
		}
	}
	lp, err := n.a.Read(regio.BusStatus, n.base+regANLP)
	if err != nil {
		return caps.Caps{}, err
	}
	np, err := n.a.Read(regio.BusConfig, n.base+regANLPNP)
	if err != nil {
		return caps.Caps{}, err
	}
	return caps.Caps{
		Tech:  caps.Tech(lp) & caps.TechMask,
		FEC:   caps.FEC(lp>>anFECShift) & 0x3,
		Pause: caps.Pause(lp>>anPauseShift) & 0x3,
		HPE:   caps.HPE(np),
	}, nil
}

// Stop implements Autoneg
func (n *RegAutoneg) Stop() error {
	return n.a.Write(regio.BusStatus, n.base+regANCtl, 0, anCtlStart|anCtlDone|anCtlError)
}
