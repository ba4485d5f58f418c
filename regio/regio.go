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

/*
Package regio provides access to the link hardware registers.

Three buses are exposed: the broadcast configuration bus (32 bit),
the per-lane microcode interface bus (16 bit) and the memory mapped
lane status bus (64 bit). Backends are not assumed to be safe for
concurrent use, wrap them with NewLocked.
*/
package regio

import (
	"errors"
	"fmt"
	"sync"
)

//go:generate mockgen -source=regio.go -destination=mock_regio.go -package=regio

// ErrIO is returned (wrapped) by every backend on a bus failure
var ErrIO = errors.New("register i/o failed")

// Bus identifies one of the register buses
type Bus uint8

// Supported buses
const (
	BusConfig Bus = iota
	BusLane
	BusStatus
)

func (b Bus) String() string {
	switch b {
	case BusConfig:
		return "sbus"
	case BusLane:
		return "pmi"
	case BusStatus:
		return "mmio"
	}
	return fmt.Sprintf("bus(%d)", b)
}

// Width returns width of a register on the bus in bits
func (b Bus) Width() uint {
	switch b {
	case BusConfig:
		return 32
	case BusLane:
		return 16
	}
	return 64
}

// Mask returns value mask covering the full register width
func (b Bus) Mask() uint64 {
	if b.Width() == 64 {
		return ^uint64(0)
	}
	return (uint64(1) << b.Width()) - 1
}

// ParseBus converts bus name back to Bus
func ParseBus(s string) (Bus, error) {
	for _, b := range []Bus{BusConfig, BusLane, BusStatus} {
		if b.String() == s {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown bus %q", s)
}

// Access is a fallible synchronous register i/o capability.
// Write only touches bits set in mask, zero mask means the full register.
type Access interface {
	Read(bus Bus, addr uint32) (uint64, error)
	Write(bus Bus, addr uint32, value, mask uint64) error
}

// Merge applies masked write semantics to old register value
func Merge(bus Bus, old, value, mask uint64) uint64 {
	if mask == 0 {
		mask = bus.Mask()
	}
	return ((old &^ mask) | (value & mask)) & bus.Mask()
}

// IOError describes a single failed register operation
type IOError struct {
	Op   string
	Bus  Bus
	Addr uint32
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s 0x%x: %v", e.Op, e.Bus, e.Addr, e.Err)
}

// Unwrap allows errors.Is(err, ErrIO) on any IOError
func (e *IOError) Unwrap() []error {
	return []error{ErrIO, e.Err}
}

func ioErr(op string, bus Bus, addr uint32, err error) error {
	return &IOError{Op: op, Bus: bus, Addr: addr, Err: err}
}

// Locked serializes all access to the wrapped backend
type Locked struct {
	mux sync.Mutex
	a   Access
}

// NewLocked wraps backend with a mutex
func NewLocked(a Access) *Locked {
	return &Locked{a: a}
}

// Read implements Access
func (l *Locked) Read(bus Bus, addr uint32) (uint64, error) {
	l.mux.Lock()
	defer l.mux.Unlock()
	return l.a.Read(bus, addr)
}

// Write implements Access
func (l *Locked) Write(bus Bus, addr uint32, value, mask uint64) error {
	l.mux.Lock()
	defer l.mux.Unlock()
	return l.a.Write(bus, addr, value, mask)
}

// ReadField reads register and returns the bits selected by mask shifted down
func ReadField(a Access, bus Bus, addr uint32, mask uint64) (uint64, error) {
	v, err := a.Read(bus, addr)
	if err != nil {
		return 0, err
	}
	if mask == 0 {
		return v, nil
	}
	shift := 0
	for mask&(1<<shift) == 0 {
		shift++
	}
	return (v & mask) >> shift, nil
}

// WriteField shifts value into the bits selected by mask and writes them
func WriteField(a Access, bus Bus, addr uint32, mask, value uint64) error {
	if mask == 0 {
		return a.Write(bus, addr, value, 0)
	}
	shift := 0
	for mask&(1<<shift) == 0 {
		shift++
	}
	return a.Write(bus, addr, value<<shift, mask)
}
