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
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestBusWidth(t *testing.T) {
	require.Equal(t, uint64(0xffffffff), BusConfig.Mask())
	require.Equal(t, uint64(0xffff), BusLane.Mask())
	require.Equal(t, ^uint64(0), BusStatus.Mask())
	require.Equal(t, "pmi", BusLane.String())
	require.Equal(t, "bus(7)", Bus(7).String())

	b, err := ParseBus("mmio")
	require.NoError(t, err)
	require.Equal(t, BusStatus, b)
	_, err = ParseBus("i2c")
	require.Error(t, err)
}

func TestMerge(t *testing.T) {
	require.Equal(t, uint64(0xab), Merge(BusLane, 0xff, 0xab, 0))
	require.Equal(t, uint64(0xf0f), Merge(BusLane, 0xfff, 0x000, 0x0f0))
	require.Equal(t, uint64(0x1234), Merge(BusLane, 0, 0xf1234, 0))
}

func TestMemoryMaskedWrite(t *testing.T) {
	m := NewMemory()
	m.Set(BusConfig, 0x10, 0xffff0000)
	require.NoError(t, m.Write(BusConfig, 0x10, 0x00ab, 0x00ff))
	v, err := m.Read(BusConfig, 0x10)
	require.NoError(t, err)
	require.Equal(t, uint64(0xffff00ab), v)
	require.Equal(t, []Op{{Bus: BusConfig, Addr: 0x10, Value: 0xab, Mask: 0xff}}, m.Writes())
	require.Equal(t, 1, m.Reads(BusConfig, 0x10))
}

func TestMemoryHooks(t *testing.T) {
	m := NewMemory()
	m.OnRead(BusLane, 0x1, func(n int, stored uint64) uint64 {
		if n < 3 {
			return 0
		}
		return 0x1
	})
	for i := 0; i < 2; i++ {
		v, err := m.Read(BusLane, 0x1)
		require.NoError(t, err)
		require.Equal(t, uint64(0), v)
	}
	v, err := m.Read(BusLane, 0x1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), v)

	m.OnWrite(BusLane, 0x2, func(m *Memory, value uint64) {
		m.Set(BusLane, 0x3, value+1)
	})
	require.NoError(t, m.Write(BusLane, 0x2, 41, 0))
	require.Equal(t, uint64(42), m.Get(BusLane, 0x3))
}

func TestMemoryFail(t *testing.T) {
	m := NewMemory()
	boom := errors.New("boom")
	m.FailOn(BusStatus, 0x8, boom)
	_, err := m.Read(BusStatus, 0x8)
	require.ErrorIs(t, err, ErrIO)
	require.ErrorIs(t, err, boom)
	var ioe *IOError
	require.ErrorAs(t, err, &ioe)
	require.Equal(t, uint32(0x8), ioe.Addr)
	require.Equal(t, "read mmio 0x8: boom", err.Error())

	m.FailOn(BusStatus, 0x8, nil)
	_, err = m.Read(BusStatus, 0x8)
	require.NoError(t, err)
}

func TestFields(t *testing.T) {
	m := NewMemory()
	require.NoError(t, WriteField(m, BusLane, 0x4, 0x0f00, 0x5))
	require.Equal(t, uint64(0x0500), m.Get(BusLane, 0x4))
	v, err := ReadField(m, BusLane, 0x4, 0x0f00)
	require.NoError(t, err)
	require.Equal(t, uint64(5), v)
}

func TestLockedSerializes(t *testing.T) {
	m := NewMemory()
	l := NewLocked(m)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, l.Write(BusConfig, uint32(i), uint64(i), 0))
		}(i)
	}
	wg.Wait()
	require.Len(t, m.Writes(), 16)
}

func TestLockedPassesThroughErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := NewMockAccess(ctrl)
	a.EXPECT().Read(BusLane, uint32(0xd148)).Return(uint64(0), fmt.Errorf("%w: nak", ErrIO))
	a.EXPECT().Write(BusLane, uint32(0xd148), uint64(1), uint64(0)).Return(nil)

	l := NewLocked(a)
	_, err := l.Read(BusLane, 0xd148)
	require.ErrorIs(t, err, ErrIO)
	require.NoError(t, l.Write(BusLane, 0xd148, 1, 0))
}

type fakePort struct {
	in  bytes.Buffer
	out bytes.Buffer
}

func (p *fakePort) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *fakePort) Write(b []byte) (int, error) { return p.out.Write(b) }
func (p *fakePort) Close() error                { return nil }

func TestSerialRead(t *testing.T) {
	p := &fakePort{}
	p.in.WriteString("[=a744]\r\n")
	s := NewSerial(p)
	v, err := s.Read(BusLane, 0xd218)
	require.NoError(t, err)
	require.Equal(t, uint64(0xa744), v)
	require.Equal(t, "{rd,pmi,d218}", p.out.String())
}

func TestSerialWrite(t *testing.T) {
	p := &fakePort{}
	p.in.WriteString("[=1]\r\n")
	s := NewSerial(p)
	require.NoError(t, s.Write(BusConfig, 0x20, 0x3, 0))
	require.Equal(t, "{wr,sbus,20,3,ffffffff}", p.out.String())
}

func TestSerialError(t *testing.T) {
	p := &fakePort{}
	p.in.WriteString("[!1]\r\n")
	s := NewSerial(p)
	_, err := s.Read(BusStatus, 0x0)
	require.ErrorIs(t, err, ErrIO)

	p.in.WriteString("[=zz]\r\n")
	_, err = s.Read(BusStatus, 0x0)
	require.ErrorIs(t, err, ErrIO)
}
