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

package llr

import (
	"fmt"
	"time"

	"github.com/facebook/linkmgr/regio"
)

//go:generate mockgen -source=hw.go -destination=mock_llr.go -package=llr

// HWState is the LLR state reported by hardware
type HWState uint8

// Hardware states
const (
	HWOff HWState = iota
	HWInit
	HWAdvance
	HWHalt
)

func (s HWState) String() string {
	switch s {
	case HWOff:
		return "off"
	case HWInit:
		return "init"
	case HWAdvance:
		return "advance"
	case HWHalt:
		return "halt"
	}
	return fmt.Sprintf("hwstate(%d)", uint8(s))
}

// Hardware is the register level LLR block of one link
type Hardware interface {
	// Configure programs settings and leaves LLR off with loop timing disabled
	Configure(s Settings) error
	// LoopTimingStart enables ordered sets and loop time measurement
	LoopTimingStart() error
	// LoopTime clears and re-reads the loop time register. Zero means no measurement yet.
	LoopTime() (uint64, error)
	SetCapacity(data, seq uint64) error
	// On turns LLR on in mode
	On(mode Mode) error
	Status() (HWState, error)
	// Off stops loop timing and ordered sets and turns LLR off
	Off() error
	// Discard drops frames while the link is down
	Discard() error
}

// Register layout of the LLR block, on the status bus
const (
	pmlBase       = 0x4000
	pmlPortStride = 0x100000
	subportStride = 0x40

	regCfgLLR      = 0x000
	regCfgCFRates  = 0x008
	regCfgSubport  = 0x100
	regCfgTxPCS    = 0x108
	regCfgRxPCS    = 0x110
	regCfgCapacity = 0x118
	regCfgSM       = 0x120
	regStsLoopTime = 0x128
	regStsLLR      = 0x130
	regCfgTimeouts = 0x138

	loopTimingPeriod     = 1000
	loopTimingPeriodMask = 0xFFFFFFFF

	cfgLLRSize          = 0x3
	cfgLLRAckNackCheck  = 1 << 4
	cfgLLRPreambleCheck = 1 << 5

	subportMode            = 0x3
	subportLinkDown        = 0x3 << 4
	subportLoopTiming      = 1 << 8
	subportLosslessWhenOff = 1 << 9
	subportFilterCtlFrames = 1 << 10
	subportStarvation      = 0xFFFF << 16

	pcsEnableCtlOS = 1 << 0

	capacityData = 0xFFFF
	capacitySeq  = 0xFFFF << 16

	smRetryThreshold = 0xFF
	smAllowReInit    = 1 << 8
	smReplayCtMax    = 0xFF << 16
	smReplayTimerMax = 0xFFFF << 32

	timeoutsDataAge    = 0xFFFFFFFF
	timeoutsPCSLinkDn  = 0xFFFFFFFF << 32
	dataAgeTimerMax    = 0xEE6B2800
	pcsLinkDnTimerMax  = 0x389ACA00
	maxStarvationLimit = 1550

	stsLoopTime = 0xFFFFFFFF
	stsLLRState = 0x7
)

// RegHardware drives the LLR block through register access
type RegHardware struct {
	a      regio.Access
	base   uint32
	port   uint32
	settle time.Duration
}

// NewRegHardware returns the LLR block of link num in port group port
func NewRegHardware(a regio.Access, port, num uint8) *RegHardware {
	return &RegHardware{
		a:      a,
		port:   uint32(port)*pmlPortStride + pmlBase,
		base:   uint32(port)*pmlPortStride + pmlBase + uint32(num)*subportStride,
		settle: 50 * time.Microsecond,
	}
}

// wr is a field writer that stops at the first error
type wr struct {
	a   regio.Access
	err error
}

func (w *wr) field(addr uint32, mask, value uint64) {
	if w.err != nil {
		return
	}
	w.err = regio.WriteField(w.a, regio.BusStatus, addr, mask, value)
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// Configure implements Hardware
func (h *RegHardware) Configure(s Settings) error {
	w := &wr{a: h.a}
	w.field(h.port+regCfgLLR, cfgLLRSize, s.Size)
	w.field(h.port+regCfgLLR, cfgLLRAckNackCheck, 1)
	w.field(h.port+regCfgLLR, cfgLLRPreambleCheck, 1)
	w.field(h.base+regCfgSubport, subportLosslessWhenOff, 0)
	w.field(h.base+regCfgSubport, subportLinkDown, s.LinkDownBehavior.hwValue())
	w.field(h.base+regCfgSubport, subportFilterCtlFrames, 1)
	w.field(h.base+regCfgSubport, subportLoopTiming, 0)
	w.field(h.base+regCfgSubport, subportMode, uint64(ModeOff))
	w.field(h.base+regCfgSubport, subportStarvation, maxStarvationLimit)
	w.field(h.base+regCfgSM, smRetryThreshold, 3)
	w.field(h.base+regCfgSM, smAllowReInit, 1)
	w.field(h.base+regCfgSM, smReplayCtMax, 0xFE)
	w.field(h.base+regCfgSM, smReplayTimerMax, maxStarvationLimit)
	w.field(h.base+regCfgTimeouts, timeoutsDataAge, dataAgeTimerMax)
	w.field(h.base+regCfgTimeouts, timeoutsPCSLinkDn, pcsLinkDnTimerMax)
	return w.err
}

// LoopTimingStart implements Hardware
func (h *RegHardware) LoopTimingStart() error {
	w := &wr{a: h.a}
	w.field(h.base+regCfgTxPCS, pcsEnableCtlOS, 1)
	w.field(h.base+regCfgRxPCS, pcsEnableCtlOS, 1)
	w.field(h.base+regCfgCFRates, loopTimingPeriodMask, loopTimingPeriod)
	w.field(h.base+regCfgSubport, subportLoopTiming, 1)
	return w.err
}

// LoopTime implements Hardware
func (h *RegHardware) LoopTime() (uint64, error) {
	if err := h.a.Write(regio.BusStatus, h.base+regStsLoopTime, 0, 0); err != nil {
		return 0, err
	}
	time.Sleep(h.settle)
	return regio.ReadField(h.a, regio.BusStatus, h.base+regStsLoopTime, stsLoopTime)
}

// SetCapacity implements Hardware
func (h *RegHardware) SetCapacity(data, seq uint64) error {
	return h.a.Write(regio.BusStatus, h.base+regCfgCapacity, data&capacityData|(seq<<16)&capacitySeq, 0)
}

// On implements Hardware
func (h *RegHardware) On(mode Mode) error {
	return regio.WriteField(h.a, regio.BusStatus, h.base+regCfgSubport, subportMode, uint64(mode))
}

// Status implements Hardware
func (h *RegHardware) Status() (HWState, error) {
	v, err := regio.ReadField(h.a, regio.BusStatus, h.base+regStsLLR, stsLLRState)
	return HWState(v), err
}

// Off implements Hardware
func (h *RegHardware) Off() error {
	w := &wr{a: h.a}
	w.field(h.base+regCfgSubport, subportLoopTiming, 0)
	w.field(h.base+regCfgRxPCS, pcsEnableCtlOS, 0)
	w.field(h.base+regCfgTxPCS, pcsEnableCtlOS, 0)
	w.field(h.base+regCfgSubport, subportMode, uint64(ModeOff))
	return w.err
}

// Discard implements Hardware
func (h *RegHardware) Discard() error {
	return regio.WriteField(h.a, regio.BusStatus, h.base+regCfgSubport, subportLinkDown, LinkDownDiscard.hwValue())
}
