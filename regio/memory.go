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

package regio

import (
	"sync"
)

type regKey struct {
	bus  Bus
	addr uint32
}

// Op is a recorded register write
type Op struct {
	Bus   Bus
	Addr  uint32
	Value uint64
	Mask  uint64
}

// ReadHook computes the value returned for n-th read (starting from 1) of a register
type ReadHook func(n int, stored uint64) uint64

// WriteHook observes register value after a write landed
type WriteHook func(m *Memory, value uint64)

// Memory is a register file kept in memory. It backs simulation mode and tests.
type Memory struct {
	mux        sync.Mutex
	regs       map[regKey]uint64
	reads      map[regKey]int
	readHooks  map[regKey]ReadHook
	writeHooks map[regKey]WriteHook
	fail       map[regKey]error
	writes     []Op
}

// NewMemory returns empty register file, all registers read as zero
func NewMemory() *Memory {
	return &Memory{
		regs:       map[regKey]uint64{},
		reads:      map[regKey]int{},
		readHooks:  map[regKey]ReadHook{},
		writeHooks: map[regKey]WriteHook{},
		fail:       map[regKey]error{},
	}
}

// Read implements Access
func (m *Memory) Read(bus Bus, addr uint32) (uint64, error) {
	k := regKey{bus, addr}
	m.mux.Lock()
	if err, ok := m.fail[k]; ok {
		m.mux.Unlock()
		return 0, ioErr("read", bus, addr, err)
	}
	m.reads[k]++
	v := m.regs[k]
	hook := m.readHooks[k]
	n := m.reads[k]
	m.mux.Unlock()
	if hook != nil {
		v = hook(n, v) & bus.Mask()
	}
	return v, nil
}

// Write implements Access
func (m *Memory) Write(bus Bus, addr uint32, value, mask uint64) error {
	k := regKey{bus, addr}
	m.mux.Lock()
	if err, ok := m.fail[k]; ok {
		m.mux.Unlock()
		return ioErr("write", bus, addr, err)
	}
	v := Merge(bus, m.regs[k], value, mask)
	m.regs[k] = v
	m.writes = append(m.writes, Op{Bus: bus, Addr: addr, Value: value, Mask: mask})
	hook := m.writeHooks[k]
	m.mux.Unlock()
	if hook != nil {
		hook(m, v)
	}
	return nil
}

// Set stores register value without recording a write
func (m *Memory) Set(bus Bus, addr uint32, value uint64) {
	m.mux.Lock()
	m.regs[regKey{bus, addr}] = value & bus.Mask()
	m.mux.Unlock()
}

// Get returns stored register value
func (m *Memory) Get(bus Bus, addr uint32) uint64 {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.regs[regKey{bus, addr}]
}

// OnRead installs a read hook for the register
func (m *Memory) OnRead(bus Bus, addr uint32, h ReadHook) {
	m.mux.Lock()
	m.readHooks[regKey{bus, addr}] = h
	m.mux.Unlock()
}

// OnWrite installs a write hook for the register
func (m *Memory) OnWrite(bus Bus, addr uint32, h WriteHook) {
	m.mux.Lock()
	m.writeHooks[regKey{bus, addr}] = h
	m.mux.Unlock()
}

// FailOn makes every access to the register fail with err. Nil err clears it.
func (m *Memory) FailOn(bus Bus, addr uint32, err error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if err == nil {
		delete(m.fail, regKey{bus, addr})
		return
	}
	m.fail[regKey{bus, addr}] = err
}

// Reads returns how many times register was read
func (m *Memory) Reads(bus Bus, addr uint32) int {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.reads[regKey{bus, addr}]
}

// Writes returns a copy of the write log
func (m *Memory) Writes() []Op {
	m.mux.Lock()
	defer m.mux.Unlock()
	ret := make([]Op, len(m.writes))
	copy(ret, m.writes)
	return ret
}

// WritesTo returns the logged writes to a single register
func (m *Memory) WritesTo(bus Bus, addr uint32) []Op {
	ret := []Op{}
	for _, op := range m.Writes() {
		if op.Bus == bus && op.Addr == addr {
			ret = append(ret, op)
		}
	}
	return ret
}

// ResetLog clears the write log and read counters
func (m *Memory) ResetLog() {
	m.mux.Lock()
	m.writes = nil
	m.reads = map[regKey]int{}
	m.mux.Unlock()
}
