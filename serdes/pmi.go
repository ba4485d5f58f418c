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
	"github.com/facebook/linkmgr/regio"
)

// BroadcastLane addresses all lanes of a serdes macro
const BroadcastLane = 0xFF

// PMI lane registers
const (
	regTxClkDebug   = 0xD1B7
	regTxPwrdn      = 0xD1B1
	regTxSdkDisable = 0xD131
	regTxDPEnable   = 0xD1D1
	regTxPrecoder   = 0xD175
	regTxTapBase    = 0xD133 // pre3, pre2, pre1, cursor, post1, post2
	regTxInvert     = 0xD173
	regTxRmtLpbk    = 0xD172
	regTxMisc       = 0xD171
	regTxPattGen    = 0xD170
	regTxPIControl  = 0xD161

	regRxClkDebug = 0xD1A7
	regRxPwrdn    = 0xD1A1
	regRxDPEnable = 0xD1C1
	regRxFwAPI    = 0xD1AD
	regRxInvert   = 0xD163
	regRxDigLpbk  = 0xD162

	regLinkTrain     = 0x0096
	regExtendedReach = 0xD590

	regUcRAMControl = 0xD202
	regUcRAMAddrLSW = 0xD208
	regUcRAMAddrMSW = 0xD209
	regUcRAMData    = 0xD20A
)

// PMI core registers
const (
	regCoreReset      = 0xD184
	regPLLDivInt      = 0xD11A
	regPLLDivFracLSW  = 0xD11B
	regPLLDivFracMSW  = 0xD11C
	regPLLStatus      = 0xD148
	regMicroStatus    = 0xD101
	regCRAMStatus     = 0xD203
	regMicroClock     = 0xD200
	regMicroReset     = 0xD201
	regMicroActive    = 0xD21A
	regCRC            = 0xD218
	regCRCControl     = 0xD217
	regClkAlignTop    = 0xD0D3
	regClkAlignCtl    = 0xD0A5
	regClkAlignPhase  = 0xD0A0
	regSwizzleBase    = 0xD190
	regPLLLockBit     = 1 << 9
	regMicroActiveAll = 0x3
)

// SBus registers of the serdes macro
const (
	sbusProcState = 2
	sbusStack0    = 3
	sbusStack1    = 4
	sbusImage     = 10
	sbusSoftReset = 0x01
	sbusPOR       = 48
)

// MMIO lane registers
const (
	mmioPortStride = 0x100000
	mmioCfgTx      = 0x1000
	mmioCfgRx      = 0x1008
	mmioSts        = 0x1100
	mmioLaneStride = 0x10

	cfgOSRMode   = 0x3FF
	cfgHPwrdn    = 1 << 16
	cfgTxDisable = 1 << 17
	cfgDPHRstb   = 1 << 18
	cfgHRstb     = 1 << 19

	stsTxDataValid  = 1 << 20
	stsTxClockValid = 1 << 16
	stsRxDataValid  = 1 << 12
	stsRxClockValid = 1 << 8
	stsRxLock       = 1 << 4

	// StatusTxReady is set in the lane status register once TX is up
	StatusTxReady = stsTxDataValid | stsTxClockValid
	// StatusRxReady is set in the lane status register once RX has locked
	StatusRxReady = stsRxDataValid | stsRxClockValid | stsRxLock
)

// PMIAddr builds a lane bus address
func PMIAddr(dev, lane, pll uint8, addr uint16) uint32 {
	return uint32(dev&0x1F)<<27 | uint32(pll&0x7)<<24 | uint32(lane)<<16 | uint32(addr)
}

// CfgAddr returns MMIO lane config register of an asic lane
func CfgAddr(port uint8, dir Dir, asic uint8) uint32 {
	off := uint32(mmioCfgTx)
	if dir == RX {
		off = mmioCfgRx
	}
	return uint32(port)*mmioPortStride + off + uint32(asic)*mmioLaneStride
}

// StsAddr returns MMIO lane status register of an asic lane
func StsAddr(port uint8, asic uint8) uint32 {
	return uint32(port)*mmioPortStride + mmioSts + uint32(asic)*8
}

// pmi is the lane bus of one serdes macro
type pmi struct {
	a   regio.Access
	dev uint8
}

// write stores data<<shift under mask
func (p pmi) write(lane uint8, addr uint16, data uint16, shift uint, mask uint16) error {
	return p.writeAt(lane, 0, addr, data, shift, mask)
}

func (p pmi) writeAt(lane, pll uint8, addr uint16, data uint16, shift uint, mask uint16) error {
	return p.a.Write(regio.BusLane, PMIAddr(p.dev, lane, pll, addr), (uint64(data)<<shift)&uint64(mask), uint64(mask))
}

// read returns (data<<shl)>>shr
func (p pmi) read(lane uint8, addr uint16, shl, shr uint) (uint16, error) {
	v, err := p.a.Read(regio.BusLane, PMIAddr(p.dev, lane, 0, addr))
	if err != nil {
		return 0, err
	}
	return (uint16(v) << shl) >> shr, nil
}

// readSigned is read with arithmetic shift right
func (p pmi) readSigned(lane uint8, addr uint16, shl, shr uint) (int16, error) {
	v, err := p.a.Read(regio.BusLane, PMIAddr(p.dev, lane, 0, addr))
	if err != nil {
		return 0, err
	}
	return int16(uint16(v)<<shl) >> shr, nil
}

func (p pmi) ucRAMAddr(lane uint8, addr uint32) error {
	if err := p.write(lane, regUcRAMControl, 0, 0, 0x2000); err != nil {
		return err
	}
	if err := p.write(lane, regUcRAMControl, 0, 0, 0x0030); err != nil {
		return err
	}
	if err := p.write(lane, regUcRAMAddrMSW, uint16(addr>>16), 0, 0xFFFF); err != nil {
		return err
	}
	return p.write(lane, regUcRAMAddrLSW, uint16(addr), 0, 0xFFFF)
}

// ucRAMRead8 reads one byte of microcontroller RAM
func (p pmi) ucRAMRead8(lane uint8, addr uint32) (uint8, error) {
	if err := p.ucRAMAddr(lane, addr); err != nil {
		return 0, err
	}
	v, err := p.read(lane, regUcRAMData, 0, 0)
	return uint8(v & 0xFF), err
}

// ucRAMReadBlock reads size bytes of microcontroller RAM using 16 bit auto incrementing reads
func (p pmi) ucRAMReadBlock(lane uint8, addr uint32, size int) ([]byte, error) {
	if err := p.ucRAMAddr(lane, addr); err != nil {
		return nil, err
	}
	// 16 bit access, auto increment
	if err := p.write(lane, regUcRAMControl, 1, 4, 0x0030); err != nil {
		return nil, err
	}
	if err := p.write(lane, regUcRAMControl, 1, 13, 0x2000); err != nil {
		return nil, err
	}
	out := make([]byte, 0, size)
	for len(out) < size {
		v, err := p.read(lane, regUcRAMData, 0, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, byte(v), byte(v>>8))
	}
	return out[:size], nil
}

// SBusAddr returns configuration bus address of a serdes macro register
func SBusAddr(dev uint8, reg uint32) uint32 {
	return uint32(dev)<<8 | reg
}

// field is one masked lane register write
type field struct {
	addr  uint16
	data  uint16
	shift uint
	mask  uint16
}

// seq is a lane register writer that stops at the first error
type seq struct {
	p    pmi
	lane uint8
	pll  uint8
	err  error
}

func (p pmi) seq(lane, pll uint8) *seq {
	return &seq{p: p, lane: lane, pll: pll}
}

func (s *seq) wr(addr, data uint16, shift uint, mask uint16) {
	s.wrAt(s.lane, s.pll, addr, data, shift, mask)
}

func (s *seq) wrAt(lane, pll uint8, addr, data uint16, shift uint, mask uint16) {
	if s.err != nil {
		return
	}
	s.err = s.p.writeAt(lane, pll, addr, data, shift, mask)
}

func (s *seq) fields(fs []field) {
	for _, f := range fs {
		s.wr(f.addr, f.data, f.shift, f.mask)
	}
}

// sbusSeq is a configuration bus accessor of one device that stops at the first error
type sbusSeq struct {
	a   regio.Access
	dev uint8
	err error
}

func (p pmi) sbus(dev uint8) *sbusSeq {
	return &sbusSeq{a: p.a, dev: dev}
}

func (s *sbusSeq) wr(reg uint32, value uint32) {
	if s.err != nil {
		return
	}
	s.err = s.a.Write(regio.BusConfig, SBusAddr(s.dev, reg), uint64(value), 0)
}

// field writes value<<shift under mask<<shift
func (s *sbusSeq) field(reg uint32, value uint32, shift uint, mask uint32) {
	if s.err != nil {
		return
	}
	s.err = s.a.Write(regio.BusConfig, SBusAddr(s.dev, reg), uint64(value&mask)<<shift, uint64(mask)<<shift)
}

func (s *sbusSeq) rd(reg uint32) uint32 {
	if s.err != nil {
		return 0
	}
	v, err := s.a.Read(regio.BusConfig, SBusAddr(s.dev, reg))
	s.err = err
	return uint32(v)
}
