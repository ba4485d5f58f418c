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

package serdes

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/facebook/linkmgr/regio"
)

// smbDev is the sbus controller owning the serdes processor state
const smbDev = 0xFD

// CoreConfig describes one serdes macro
type CoreConfig struct {
	DevID              uint8  `yaml:"dev_id"`
	NumLanes           uint8  `yaml:"num_lanes"`
	NumPLLs            uint8  `yaml:"num_plls"`
	Firmware           string `yaml:"firmware"`
	MinFirmwareVersion string `yaml:"min_firmware_version"`
	StackSize          uint16 `yaml:"stack_size"`
}

// DefaultCoreConfig returns config of an octet serdes macro
func DefaultCoreConfig() CoreConfig {
	return CoreConfig{
		NumLanes:  MaxSerdesLanes,
		NumPLLs:   2,
		StackSize: StackSizeOctet,
	}
}

// Validate CoreConfig is sane
func (c *CoreConfig) Validate() error {
	if c.DevID > 0x1F {
		return fmt.Errorf("dev_id must be below 32")
	}
	if c.NumLanes == 0 || c.NumLanes > MaxSerdesLanes {
		return fmt.Errorf("num_lanes must be 1..%d", MaxSerdesLanes)
	}
	if c.NumPLLs == 0 || c.NumPLLs > 8 {
		return fmt.Errorf("num_plls must be 1..8")
	}
	if _, err := ExpectedCRC(c.StackSize); err != nil {
		return err
	}
	return nil
}

// CoreState is a snapshot of the macro initialization state
type CoreState struct {
	CoreInit     bool     `json:"core_init"`
	PLLLocked    bool     `json:"pll_locked"`
	Clocking     Clocking `json:"clocking"`
	FirmwareHash uint64   `json:"firmware_hash"`
	FwInfo       FwInfo   `json:"fw_info"`
}

// Core is the per port group serdes macro controller. Two ports share one macro.
type Core struct {
	mux    sync.Mutex
	p      pmi
	cfg    CoreConfig
	timing Timing
	fw     *Firmware

	initDone  bool
	pllLocked bool
	clocking  Clocking
	loaded    uint64
	info      FwInfo
	infoValid bool
	swizzled  map[uint8]bool
}

// NewCore returns a macro controller. fw may be nil when the image is loaded by other means.
func NewCore(a regio.Access, cfg CoreConfig, timing Timing, fw *Firmware) *Core {
	return &Core{
		p:        pmi{a: a, dev: cfg.DevID},
		cfg:      cfg,
		timing:   timing,
		fw:       fw,
		swizzled: map[uint8]bool{},
	}
}

// Start brings the macro to a state where lanes can be configured. It is idempotent.
func (c *Core) Start(ctx context.Context, clocking Clocking, sw *Swizzle) error {
	c.mux.Lock()
	defer c.mux.Unlock()

	if !c.initDone {
		if err := c.init(ctx); err != nil {
			return fmt.Errorf("%w: core init: %w", ErrConfig, err)
		}
	}
	if err := c.pll(ctx, clocking); err != nil {
		return fmt.Errorf("%w: pll: %w", ErrConfig, err)
	}
	if sw != nil && !c.swizzled[sw.Port] {
		if err := c.swizzle(sw); err != nil {
			return fmt.Errorf("%w: swizzle: %w", ErrConfig, err)
		}
		c.swizzled[sw.Port] = true
	}
	return nil
}

// Reset drops all cached state so the next Start reinitializes the macro
func (c *Core) Reset() {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.initDone = false
	c.pllLocked = false
	c.clocking = 0
	c.loaded = 0
	c.info = FwInfo{}
	c.infoValid = false
	c.swizzled = map[uint8]bool{}
}

// State returns a snapshot of the macro state
func (c *Core) State() CoreState {
	c.mux.Lock()
	defer c.mux.Unlock()
	return CoreState{
		CoreInit:     c.initDone,
		PLLLocked:    c.pllLocked,
		Clocking:     c.clocking,
		FirmwareHash: c.loaded,
		FwInfo:       c.info,
	}
}

// FwInfo returns the running microcode description
func (c *Core) FwInfo() (FwInfo, bool) {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.info, c.infoValid
}

func (c *Core) init(ctx context.Context) error {
	log.Debugf("serdes %d: init", c.cfg.DevID)
	if err := c.straightLaneMap(); err != nil {
		return err
	}
	if c.fw != nil && c.loaded != c.fw.Hash {
		if err := c.firmwareLoad(ctx); err != nil {
			return fmt.Errorf("firmware load: %w", err)
		}
		c.loaded = c.fw.Hash
	}
	if !c.infoValid {
		if err := c.firmwareInfo(); err != nil {
			return fmt.Errorf("firmware info: %w", err)
		}
	}
	if err := c.sbusReset(ctx); err != nil {
		return fmt.Errorf("sbus reset: %w", err)
	}
	if err := c.procReset(ctx); err != nil {
		return fmt.Errorf("proc reset: %w", err)
	}
	if err := c.clockInit(ctx); err != nil {
		return fmt.Errorf("clock init: %w", err)
	}
	if err := c.lgrpReset(ctx); err != nil {
		return fmt.Errorf("lane reset: %w", err)
	}
	c.initDone = true
	return nil
}

// straightLaneMap sets the lane map back to identity before firmware runs
func (c *Core) straightLaneMap() error {
	s := c.p.sbus(c.cfg.DevID)
	for i := uint32(0); i < uint32(c.cfg.NumLanes); i++ {
		s.wr(2, 0x08FFD190+i)
		s.wr(3, i<<24|i<<16)
	}
	return s.err
}

func (c *Core) swizzle(sw *Swizzle) error {
	off := uint16(sw.offset())
	w := c.p.seq(BroadcastLane, 0)
	for i, l := range sw.Lanes {
		w.wr(regSwizzleBase+off+uint16(i), uint16(l.TxSource)+off, 8, 0x1F00)
		w.wr(regSwizzleBase+off+uint16(i), uint16(l.RxSource)+off, 0, 0x001F)
	}
	return w.err
}

func (c *Core) sbusReset(ctx context.Context) error {
	smb := c.p.sbus(smbDev)
	s := c.p.sbus(c.cfg.DevID)

	// halt the processor by single stepping it
	procState := smb.rd(5)
	smb.wr(5, procState&^3|1)
	s.wr(0xFF, 0)
	s.wr(sbusSoftReset, 1)
	if d := s.rd(sbusPOR); d&3 == 0 || d&6 == 2 {
		s.wr(sbusPOR, d|6)
	}
	strap := s.rd(33)
	if strap&(1<<31) != 0 {
		strap = (strap >> 24) & 0x1F
	} else {
		strap = (strap >> 16) & 0x1F
	}
	s.wr(sbusProcState, 0xD22E|strap<<27)
	stack := (s.rd(sbusStack1) >> 2) & 0x1FFF
	misc := s.rd(sbusPOR)
	s.field(sbusPOR, 0, 1, 1)
	s.field(sbusPOR, 1, 2, 1)
	if s.err != nil || smb.err != nil {
		return firstErr(smb.err, s.err)
	}
	if err := sleep(ctx, c.timing.CoreInitInterval); err != nil {
		return err
	}
	s.field(sbusPOR, 1, 1, 1)
	// preserve stack size across the power on reset
	s.wr(sbusProcState, 0xD22E|strap<<27)
	s.wr(sbusStack0, stack<<18|0x8003)
	s.wr(sbusPOR, misc)
	smb.wr(5, procState)
	s.field(sbusPOR, 3, 1, 3)
	log.Debugf("serdes %d: sbus reset, stack size 0x%X", c.cfg.DevID, stack)
	return firstErr(smb.err, s.err)
}

func (c *Core) ucResetSet(stackSize uint16) error {
	w := c.p.seq(BroadcastLane, 0)
	w.wr(0xD23E, 0, 0, 0x0001)
	w.wr(0xD23E, 1, 0, 0x0001)
	// stop CRC calc
	w.wr(regCRCControl, 0, 0, 0x0001)
	w.wr(0xD22E, stackSize, 2, 0x7FFC)
	w.wr(0xD22E, 1, 15, 0x8000)
	// micro inactive
	w.wr(regMicroStatus, 0, 1, 0x0002)
	return w.err
}

func (c *Core) waitRAMInit(ctx context.Context, lane uint8, tries int) error {
	return poll(ctx, tries, c.timing.CoreInitInterval, func() (bool, error) {
		v, err := c.p.read(lane, regCRAMStatus, 15, 15)
		return v != 0, err
	})
}

func (c *Core) waitMicroActive(ctx context.Context, lane uint8, tries int) error {
	return poll(ctx, tries, c.timing.CoreInitInterval, func() (bool, error) {
		v, err := c.p.read(lane, regMicroStatus, 14, 15)
		if err != nil || v != 1 {
			return false, err
		}
		v, err = c.p.read(lane, regMicroActive, 0, 0)
		return v&regMicroActiveAll == regMicroActiveAll, err
	})
}

func (c *Core) ucResetClr(ctx context.Context) error {
	w := c.p.seq(BroadcastLane, 0)
	w.wr(0xD23E, 1, 0, 0x0001)
	w.wr(regMicroClock, 1, 0, 0x0001)
	w.wr(regMicroReset, 1, 0, 0x0001)
	w.wr(0xD227, 1, 0, 0x0001)
	w.wr(regUcRAMControl, 2, 8, 0x0300)
	if w.err != nil {
		return w.err
	}
	if err := c.waitRAMInit(ctx, BroadcastLane, c.timing.CoreInitTries); err != nil {
		return fmt.Errorf("cRAM init: %w", err)
	}
	w.wr(regUcRAMControl, 0, 8, 0x0300)
	for x := uint8(0); x < c.info.NumMicros; x++ {
		w.wrAt(BroadcastLane, x, 0xD240, 1, 0, 0x0001)
		w.wrAt(BroadcastLane, x, 0xD241, 1, 0, 0x0001)
	}
	return w.err
}

func (c *Core) procReset(ctx context.Context) error {
	stack, err := c.p.read(BroadcastLane, 0xD22E, 1, 3)
	if err != nil {
		return err
	}
	if err := c.ucResetSet(stack); err != nil {
		return err
	}
	w := c.p.seq(BroadcastLane, 0)
	// common clock, broadcast port address
	w.wr(0xD19D, 1, 6, 0x0040)
	w.wr(0xFFDC, 0x1F, 0, 0x001F)
	for x := uint8(0); x < c.cfg.NumLanes; x++ {
		w.wrAt(x, 0, 0xD0B1, 0, 0, 0x0001)
	}
	if w.err != nil {
		return w.err
	}
	if err := sleep(ctx, c.timing.ResetPulse); err != nil {
		return err
	}
	for x := uint8(0); x < c.cfg.NumPLLs; x++ {
		w.wrAt(0, x, regCoreReset, 0, 13, 0x2000)
	}
	if w.err != nil {
		return w.err
	}
	if err := sleep(ctx, c.timing.ResetPulse); err != nil {
		return err
	}
	w.wrAt(0, 0, regMicroStatus, 0, 0, 0x0001)
	w.wrAt(0, 0, regMicroStatus, 1, 0, 0x0001)
	// isolate ctrl pins
	w.wr(0xD182, 1, 1, 0x0002)
	w.wrAt(BroadcastLane, 1, 0xD182, 1, 1, 0x0002)
	if w.err != nil {
		return w.err
	}
	if err := c.ucResetSet(stack); err != nil {
		return err
	}
	if err := c.ucResetClr(ctx); err != nil {
		return err
	}
	if err := c.waitMicroActive(ctx, BroadcastLane, c.timing.CoreInitTries); err != nil {
		return fmt.Errorf("micro active: %w", err)
	}
	log.Debugf("serdes %d: micro active", c.cfg.DevID)
	return nil
}

// clock defaults followed by clock config, all on the broadcast lane
var (
	clockDefaults = []field{
		{0xD11A, 0x3B, 0, 0x03FF}, {0xD11B, 0x0, 0, 0xFFFF}, {0xD11C, 0x0, 0, 0x0003},
		{0xD111, 0x0, 7, 0x0080}, {0xD111, 0x0, 5, 0x0020}, {0xD111, 0x0, 6, 0x0040},
		{0xD327, 0x0, 1, 0x0002}, {0xD119, 0x1, 12, 0x3000}, {0xD119, 0x1, 11, 0x0800},
		{0xD320, 0x0, 3, 0x0008}, {0xD320, 0x0, 4, 0x0010}, {0xD322, 0x0, 10, 0x0400},
		{0xD321, 0x4, 4, 0x0070}, {0xD321, 0x7, 11, 0x7800}, {0xD322, 0x0, 6, 0x03C0},
		{0xD113, 0x0, 0, 0x000F}, {0xD323, 0x2, 0, 0x0007}, {0xD119, 0x0, 4, 0x0010},
		{0xD11D, 0xC, 2, 0x003C}, {0xD321, 0x0, 7, 0x0180}, {0xD320, 0x3, 11, 0x1800},
		{0xD321, 0x0, 0, 0x000F}, {0xD322, 0x0, 5, 0x0020}, {0xD322, 0x0, 4, 0x0010},
		{0xD322, 0x0, 2, 0x000C}, {0xD322, 0x0, 0, 0x0003},
	}
	clockConfig = []field{
		{0xD327, 0x0, 2, 0x0004}, {0xD110, 0x1, 4, 0x0010}, {0xD110, 0x1, 3, 0x0008},
		{0xD320, 0x1, 3, 0x0008}, {0xD320, 0x1, 4, 0x0104}, {0xD110, 0x0, 3, 0x0008},
		{0xD321, 0x6, 11, 0x7800}, {0xD322, 0x3, 6, 0x03C0}, {0xD113, 0x3, 0, 0x000F},
		{0xD323, 0x2, 0, 0x0007}, {0xD321, 0x1, 4, 0x0070}, {0xD18D, 0xC1, 0, 0xFFFF},
	}
)

func (c *Core) clockInit(ctx context.Context) error {
	w := c.p.seq(BroadcastLane, 0)
	// refclk
	w.wr(0xD112, 0, 5, 0x0060)
	w.wr(0xD114, 0, 10, 0x0400)
	w.wr(0xD114, 0, 9, 0x0200)
	w.wr(0xD114, 0, 8, 0x0100)
	// reset is active low
	w.wr(regCoreReset, 0, 13, 0x2000)
	w.fields(clockDefaults)
	w.fields(clockConfig)
	w.wr(regCoreReset, 1, 13, 0x2000)
	if w.err != nil {
		return w.err
	}
	return sleep(ctx, c.timing.PLLSettle)
}

func (c *Core) lgrpReset(ctx context.Context) error {
	for x := uint8(0); x < c.cfg.NumLanes; x++ {
		for _, r := range [][2]uint16{{regTxDPEnable, 0xD1DE}, {regRxDPEnable, 0xD1CE}} {
			w := c.p.seq(x, 0)
			w.wr(r[0], 0, 0, 0x0001)
			if w.err != nil {
				return w.err
			}
			if err := sleep(ctx, c.timing.ResetPulse); err != nil {
				return err
			}
			w.wr(r[1], 0, 0, 0x0001)
			if w.err != nil {
				return w.err
			}
			if err := sleep(ctx, c.timing.ResetPulse); err != nil {
				return err
			}
			w.wr(r[1], 1, 0, 0x0001)
			if w.err != nil {
				return w.err
			}
		}
	}
	return nil
}

func (c *Core) pll(ctx context.Context, clocking Clocking) error {
	if c.pllLocked && c.clocking == clocking {
		log.Debugf("serdes %d: pll already locked at %s", c.cfg.DevID, clocking)
		return nil
	}
	c.pllLocked = false
	div, frac := clocking.pllDivider()
	w := c.p.seq(BroadcastLane, 0)
	w.wr(regCoreReset, 0, 13, 0x2000)
	// reset PLL MMD, program divider
	w.wr(0xD119, 0x0, 11, 0x0800)
	w.wr(0xD119, 0x1, 11, 0x0800)
	w.wr(regPLLDivFracMSW, 0x0, 3, 0x0008)
	w.wr(0xD119, 0x1, 12, 0x3000)
	w.wr(regPLLDivInt, div, 0, 0x03FF)
	w.wr(regPLLDivFracLSW, 0, 0, 0xFFFF)
	w.wr(regPLLDivFracMSW, frac, 0, 0x0003)
	w.wr(regPLLDivFracMSW, 0x1, 3, 0x0008)
	if w.err != nil {
		return w.err
	}
	if err := sleep(ctx, c.timing.ResetPulse); err != nil {
		return err
	}
	w.wr(regPLLDivFracMSW, 0x0, 3, 0x0008)
	w.wr(0xD119, 0x0, 11, 0x0800)
	w.wr(0xD119, 0x1, 11, 0x0800)
	w.wr(regCoreReset, 1, 13, 0x2000)
	if w.err != nil {
		return w.err
	}
	if err := sleep(ctx, c.timing.PLLSettle); err != nil {
		return err
	}
	v, err := c.p.read(BroadcastLane, regPLLStatus, 0, 0)
	if err != nil {
		return err
	}
	if v&regPLLLockBit == 0 {
		return fmt.Errorf("pll failed to lock (status 0x%X): %w", v, ErrTimeout)
	}
	c.clocking = clocking
	c.pllLocked = true
	log.Debugf("serdes %d: pll locked at %s", c.cfg.DevID, clocking)
	return nil
}

func (c *Core) firmwareInfo() error {
	b, err := c.p.ucRAMReadBlock(0, fwInfoAddr, fwInfoSize)
	if err != nil {
		return err
	}
	info, err := ParseFwInfo(b)
	if err != nil {
		return err
	}
	log.Debugf("serdes %d: firmware info %+v", c.cfg.DevID, info)
	c.info = info
	c.infoValid = true
	return nil
}

func (c *Core) firmwareLoad(ctx context.Context) error {
	if err := c.fw.CheckVersion(c.cfg.MinFirmwareVersion); err != nil {
		return err
	}
	crc, err := ExpectedCRC(c.cfg.StackSize)
	if err != nil {
		return err
	}
	log.Infof("serdes %d: loading firmware %s (%d words)", c.cfg.DevID, c.fw.Name, len(c.fw.Words))
	if err := c.firmwareSetup(ctx); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	s := c.p.sbus(c.cfg.DevID)
	for _, word := range c.fw.Words {
		s.wr(sbusImage, word)
	}
	if s.err != nil {
		return fmt.Errorf("image write: %w", s.err)
	}
	return c.firmwareFinish(ctx, crc)
}

func (c *Core) firmwareSetup(ctx context.Context) error {
	s := c.p.sbus(c.cfg.DevID)
	s.field(sbusPOR, 0, 1, 1)
	s.field(sbusPOR, 1, 2, 1)
	if s.err != nil {
		return s.err
	}
	if err := sleep(ctx, c.timing.CoreInitInterval); err != nil {
		return err
	}
	s.field(sbusPOR, 1, 1, 1)

	w := c.p.seq(0, 0)
	w.wr(0xD23E, 0, 0, 0x0001)
	w.wr(0xD23E, 1, 0, 0x0001)
	w.wr(regCRCControl, 0, 0, 0x0001)
	w.wr(0xD22E, c.cfg.StackSize, 2, 0x7FFC)
	w.wr(0xD22E, 1, 15, 0x8000)
	// enable access to program RAM
	s.wr(0, 0x80000000)
	w.wr(regMicroClock, 1, 0, 0x0001)
	w.wr(regMicroReset, 1, 0, 0x0001)
	w.wr(regMicroReset, 0, 0, 0x0001)
	w.wr(regMicroReset, 1, 0, 0x0001)
	w.wr(0xD227, 1, 0, 0x0001)
	w.wr(regUcRAMControl, 1, 8, 0x0300)
	if err := firstErr(s.err, w.err); err != nil {
		return err
	}
	initErr := c.waitRAMInit(ctx, 0, c.timing.RAMInitTries)
	w.wr(regUcRAMControl, 0, 8, 0x0300)
	if initErr != nil {
		return fmt.Errorf("code RAM init: %w", initErr)
	}
	// CRC engine init and start
	w.wr(regCRCControl, 1, 2, 0x0004)
	w.wr(regCRCControl, 0, 2, 0x0004)
	w.wr(regCRCControl, 1, 1, 0x0002)
	w.wr(regCRCControl, 0, 1, 0x0002)
	w.wr(regCRCControl, 1, 0, 0x0001)
	w.wr(0xD227, 0, 1, 0x0002)
	w.wr(0xD20D, 0, 2, 0xFFFC)
	w.wr(0xD20E, 0, 0, 0xFFFF)
	w.wr(regMicroReset, 1, 15, 0x8000)
	w.wr(0xD20C, 1, 0, 0x0001)
	return w.err
}

func (c *Core) firmwareFinish(ctx context.Context, crc uint16) error {
	s := c.p.sbus(c.cfg.DevID)
	w := c.p.seq(0, 0)
	w.wr(0xD227, 1, 1, 0x0002)
	w.wr(regCRCControl, 0, 0, 0x0001)
	w.wr(0xD22E, c.cfg.StackSize, 2, 0x7FFC)
	w.wr(0xD22E, 1, 15, 0x8000)
	w.wr(0xD20C, 0, 0, 0x0001)
	s.wr(0, 0)
	w.wr(0xD23E, 1, 0, 0x0001)
	w.wr(regMicroReset, 1, 0, 0x0001)
	w.wr(0xD227, 1, 0, 0x0001)
	w.wr(regUcRAMControl, 2, 8, 0x0300)
	if err := firstErr(s.err, w.err); err != nil {
		return err
	}
	initErr := c.waitRAMInit(ctx, 0, c.timing.RAMInitTries)
	w.wr(regUcRAMControl, 0, 8, 0x0300)
	if initErr != nil {
		return fmt.Errorf("data RAM init: %w", initErr)
	}
	micros, err := c.p.read(0, regMicroActive, 0, 12)
	if err != nil {
		return err
	}
	for x := uint8(0); x < uint8(micros); x++ {
		w.wrAt(0, x, 0xD240, 1, 0, 0x0001)
		w.wrAt(0, x, 0xD241, 1, 0, 0x0001)
	}
	if w.err != nil {
		return w.err
	}
	got, err := c.p.read(0, regCRC, 0, 0)
	if err != nil {
		return err
	}
	if got != crc {
		return fmt.Errorf("crc 0x%04X, expected 0x%04X: %w", got, crc, ErrFirmware)
	}
	if err := c.waitMicroActive(ctx, 0, c.timing.MicroActiveTries); err != nil {
		return fmt.Errorf("micro active: %w", err)
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
