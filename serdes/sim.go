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
	"encoding/binary"
	"sync"

	"github.com/facebook/linkmgr/regio"
)

const (
	simLaneVarBase = 0x400
	simLaneVarSize = 0x100
)

// ucRAM emulates microcontroller RAM behind the per lane indirect access registers
type ucRAM struct {
	mux  sync.Mutex
	mem  map[uint32]byte
	addr map[uint8]uint32
}

func (r *ucRAM) attach(m *regio.Memory, dev, lane uint8) {
	m.OnWrite(regio.BusLane, PMIAddr(dev, lane, 0, regUcRAMAddrLSW), func(m *regio.Memory, v uint64) {
		msw := m.Get(regio.BusLane, PMIAddr(dev, lane, 0, regUcRAMAddrMSW))
		r.mux.Lock()
		r.addr[lane] = uint32(msw)<<16 | uint32(v)
		r.mux.Unlock()
	})
	m.OnRead(regio.BusLane, PMIAddr(dev, lane, 0, regUcRAMData), func(_ int, _ uint64) uint64 {
		r.mux.Lock()
		defer r.mux.Unlock()
		a := r.addr[lane]
		r.addr[lane] = a + 2
		return uint64(r.mem[a]) | uint64(r.mem[a+1])<<8
	})
}

func (r *ucRAM) set(addr uint32, b ...byte) {
	r.mux.Lock()
	defer r.mux.Unlock()
	for i, v := range b {
		r.mem[addr+uint32(i)] = v
	}
}

// Sim makes a register file answer every poll of a serdes macro the way healthy hardware does
type Sim struct {
	m   *regio.Memory
	ram *ucRAM
	dev uint8
}

func simInfoBlock() []byte {
	b := make([]byte, fwInfoSize)
	binary.LittleEndian.PutUint32(b[0:], fwInfoSignature|2<<24)
	binary.LittleEndian.PutUint32(b[fwInfoLaneMemSizeOff:], simLaneVarSize<<16)
	binary.LittleEndian.PutUint32(b[fwInfoLaneCountOff:], MaxSerdesLanes)
	binary.LittleEndian.PutUint32(b[fwInfoLaneMemPtrOff:], simLaneVarBase)
	binary.LittleEndian.PutUint32(b[fwInfoNumMicrosOff:], 2)
	return b
}

// NewSim attaches a simulated macro dev to m. Lanes of the port groups in ports report ready.
func NewSim(m *regio.Memory, dev uint8, ports ...uint8) *Sim {
	s := &Sim{
		m:   m,
		ram: &ucRAM{mem: map[uint32]byte{}, addr: map[uint8]uint32{}},
		dev: dev,
	}
	s.ram.set(fwInfoAddr, simInfoBlock()...)
	for lane := uint8(0); lane < MaxSerdesLanes; lane++ {
		s.ram.attach(m, dev, lane)
		s.SetEye(lane, 30, 30)
	}
	for _, lane := range []uint8{0, BroadcastLane} {
		m.OnRead(regio.BusLane, PMIAddr(dev, lane, 0, regCRAMStatus), func(_ int, _ uint64) uint64 { return 1 })
		m.OnRead(regio.BusLane, PMIAddr(dev, lane, 0, regMicroStatus), func(_ int, _ uint64) uint64 { return 2 })
		m.Set(regio.BusLane, PMIAddr(dev, lane, 0, regMicroActive), 1<<12|regMicroActiveAll)
	}
	m.OnRead(regio.BusLane, PMIAddr(dev, BroadcastLane, 0, regPLLStatus), func(_ int, _ uint64) uint64 { return regPLLLockBit })
	m.Set(regio.BusLane, PMIAddr(dev, 0, 0, regCRC), crcOctet)
	for _, port := range ports {
		for asic := uint8(0); asic < MaxAsicLanes; asic++ {
			m.Set(regio.BusStatus, StsAddr(port, asic), StatusTxReady|StatusRxReady)
		}
	}
	return s
}

// SetEye sets the eye opening the firmware reports for a serdes lane
func (s *Sim) SetEye(lane uint8, upper, lower uint8) {
	base := uint32(simLaneVarBase) + uint32(lane)*simLaneVarSize
	s.ram.set(base+varEyeUpper, upper)
	s.ram.set(base+varEyeLower, lower)
}
