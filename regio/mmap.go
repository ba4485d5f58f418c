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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
	"unsafe"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Mailbox layout inside the BAR. Configuration and lane buses are indirect,
// the status bus is mapped directly.
const (
	mboxSbusOffset = 0x0100_0000
	mboxPmiOffset  = 0x0100_0100

	mboxCmd    = 0x00
	mboxData   = 0x08
	mboxStatus = 0x10

	mboxCmdRead  = uint64(1) << 62
	mboxCmdWrite = uint64(1) << 63

	mboxStatusDone = uint64(1) << 0
	mboxStatusErr  = uint64(1) << 1

	mboxPollTries = 1000
)

var errMboxTimeout = errors.New("mailbox timed out")
var errMboxStatus = errors.New("mailbox reported error")

// Mmap accesses registers through a memory mapped PCI resource
type Mmap struct {
	path string
	mem  []byte
}

// PCIResourcePath returns sysfs path of the BAR of a PCI function
func PCIResourcePath(bdf string, bar int) string {
	return filepath.Join("/sys/bus/pci/devices", bdf, fmt.Sprintf("resource%d", bar))
}

// OpenMmap maps size bytes of the resource file
func OpenMmap(path string, size int) (*Mmap, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	log.Debugf("mapped %d bytes of %s", size, path)
	return &Mmap{path: path, mem: mem}, nil
}

// Close unmaps the resource
func (m *Mmap) Close() error {
	if m.mem == nil {
		return nil
	}
	err := unix.Munmap(m.mem)
	m.mem = nil
	return err
}

func (m *Mmap) word(off uint32) (*uint64, error) {
	if off%8 != 0 || int(off)+8 > len(m.mem) {
		return nil, fmt.Errorf("offset 0x%x outside of %s", off, m.path)
	}
	return (*uint64)(unsafe.Pointer(&m.mem[off])), nil
}

func (m *Mmap) load(off uint32) (uint64, error) {
	p, err := m.word(off)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint64(p), nil
}

func (m *Mmap) store(off uint32, v uint64) error {
	p, err := m.word(off)
	if err != nil {
		return err
	}
	atomic.StoreUint64(p, v)
	return nil
}

func mboxBase(bus Bus) uint32 {
	if bus == BusLane {
		return mboxPmiOffset
	}
	return mboxSbusOffset
}

func (m *Mmap) mbox(bus Bus, cmd uint64) (uint64, error) {
	base := mboxBase(bus)
	if err := m.store(base+mboxCmd, cmd); err != nil {
		return 0, err
	}
	for i := 0; i < mboxPollTries; i++ {
		st, err := m.load(base + mboxStatus)
		if err != nil {
			return 0, err
		}
		if st&mboxStatusErr != 0 {
			return 0, errMboxStatus
		}
		if st&mboxStatusDone != 0 {
			return m.load(base + mboxData)
		}
		time.Sleep(time.Microsecond)
	}
	return 0, errMboxTimeout
}

// Read implements Access
func (m *Mmap) Read(bus Bus, addr uint32) (uint64, error) {
	if bus == BusStatus {
		v, err := m.load(addr)
		if err != nil {
			return 0, ioErr("read", bus, addr, err)
		}
		return v, nil
	}
	v, err := m.mbox(bus, mboxCmdRead|uint64(addr))
	if err != nil {
		return 0, ioErr("read", bus, addr, err)
	}
	return v & bus.Mask(), nil
}

// Write implements Access
func (m *Mmap) Write(bus Bus, addr uint32, value, mask uint64) error {
	old := uint64(0)
	if mask != 0 && mask != bus.Mask() {
		v, err := m.Read(bus, addr)
		if err != nil {
			return err
		}
		old = v
	}
	v := Merge(bus, old, value, mask)
	if bus == BusStatus {
		if err := m.store(addr, v); err != nil {
			return ioErr("write", bus, addr, err)
		}
		return nil
	}
	base := mboxBase(bus)
	if err := m.store(base+mboxData, v); err != nil {
		return ioErr("write", bus, addr, err)
	}
	if _, err := m.mbox(bus, mboxCmdWrite|uint64(addr)); err != nil {
		return ioErr("write", bus, addr, err)
	}
	return nil
}
