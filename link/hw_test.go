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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/facebook/linkmgr/caps"
	"github.com/facebook/linkmgr/regio"
)

func TestRegPCSAddressing(t *testing.T) {
	p := NewRegPCS(regio.NewMemory(), 1, 2)
	require.Equal(t, uint32(0x108000), p.port)
	require.Equal(t, uint32(0x108080), p.base)
}

func TestRegPCSStartStop(t *testing.T) {
	m := regio.NewMemory()
	p := NewRegPCS(m, 0, 1)
	require.NoError(t, p.Start(caps.TechCK400G, caps.FECRS))
	cfg := m.Get(regio.BusStatus, p.base+regPCSCfg)
	require.Equal(t, uint64(7), cfg&pcsCfgTech)
	require.Equal(t, uint64(1), (cfg&pcsCfgFEC)>>8)
	require.NotZero(t, cfg&pcsCfgTx)
	require.NotZero(t, cfg&pcsCfgRx)

	require.NoError(t, p.EnableTx(0x3))
	require.Equal(t, uint64(0x3), m.Get(regio.BusStatus, p.port+regPMDTx))
	require.NoError(t, p.EnableTx(0x4))
	require.Equal(t, uint64(0x7), m.Get(regio.BusStatus, p.port+regPMDTx))

	require.NoError(t, p.MACStart())
	require.Equal(t, uint64(macCfgTx|macCfgRx), m.Get(regio.BusStatus, p.base+regMACCfg))

	require.NoError(t, p.Stop())
	require.Zero(t, m.Get(regio.BusStatus, p.base+regMACCfg))
	require.Zero(t, m.Get(regio.BusStatus, p.base+regPCSCfg)&(pcsCfgTx|pcsCfgRx))
	require.Equal(t, uint64(7), m.Get(regio.BusStatus, p.base+regPCSCfg)&pcsCfgTech)

	require.NoError(t, p.Reset())
	require.Zero(t, m.Get(regio.BusStatus, p.base+regPCSCfg))
	require.Len(t, m.WritesTo(regio.BusStatus, p.base+regPCSCfg), 4)
}

func TestRegPCSBadTech(t *testing.T) {
	p := NewRegPCS(regio.NewMemory(), 0, 0)
	require.ErrorIs(t, p.Start(0, caps.FECRS), ErrConfig)
}

func TestRegPCSOK(t *testing.T) {
	m := regio.NewMemory()
	p := NewRegPCS(m, 0, 0)
	ok, err := p.OK()
	require.NoError(t, err)
	require.False(t, ok)

	m.Set(regio.BusStatus, p.base+regPCSSts, pcsStsLock)
	ok, err = p.OK()
	require.NoError(t, err)
	require.False(t, ok)

	m.Set(regio.BusStatus, p.base+regPCSSts, pcsStsLock|pcsStsAlign)
	ok, err = p.OK()
	require.NoError(t, err)
	require.True(t, ok)

	m.FailOn(regio.BusStatus, p.base+regPCSSts, errors.New("bus"))
	_, err = p.OK()
	require.ErrorIs(t, err, regio.ErrIO)
}

func TestRegPCSCounters(t *testing.T) {
	m := regio.NewMemory()
	p := NewRegPCS(m, 0, 1)
	m.Set(regio.BusStatus, p.base+regFECUCW, 3)
	m.Set(regio.BusStatus, p.base+regFECCCW, 40)
	m.Set(regio.BusStatus, p.base+regFECGCW, 5000)
	m.Set(regio.BusStatus, p.port+regFECLanes+fecLaneStride+2*8, 9)
	m.Set(regio.BusStatus, p.port+regFECTail+fecLaneStride+14*8, 11)

	c, err := p.Counters()
	require.NoError(t, err)
	require.Equal(t, uint64(3), c.UCW)
	require.Equal(t, uint64(40), c.CCW)
	require.Equal(t, uint64(5000), c.GCW)
	require.Equal(t, uint64(9), c.Lanes[2])
	require.Equal(t, uint64(11), c.Tail[14])

	m.FailOn(regio.BusStatus, p.base+regFECGCW, errors.New("bus"))
	_, err = p.Counters()
	require.ErrorIs(t, err, regio.ErrIO)
}

func TestRegPCSFaults(t *testing.T) {
	m := regio.NewMemory()
	p := NewRegPCS(m, 0, 1)
	want := FaultBits(1, false, true, false, false, false)
	m.Set(regio.BusStatus, p.port+regFaults, want)
	got, err := p.Faults()
	require.NoError(t, err)
	require.Equal(t, want, got)
	cause, info := DecodeFault(1, got)
	require.Equal(t, CauseRemoteFault, cause)
	require.Equal(t, InfoPCSRemoteFault, info)
}

func TestStaticMedia(t *testing.T) {
	c, err := StaticMedia{Present: true, Supported: true}.Cable()
	require.NoError(t, err)
	require.True(t, c.Present)
}

func TestRegAutoneg(t *testing.T) {
	m := regio.NewMemory()
	n := NewRegAutoneg(m, 0, 1, time.Millisecond)
	lp := uint64(caps.TechCK200G|caps.TechCD100G) | uint64(caps.FECRS)<<anFECShift | uint64(caps.PauseSym)<<anPauseShift
	m.Set(regio.BusStatus, n.base+regANLP, lp)
	m.Set(regio.BusConfig, n.base+regANLPNP, uint64(caps.HPELLR))
	m.OnRead(regio.BusStatus, n.base+regANCtl, func(i int, stored uint64) uint64 {
		if i >= 3 {
			return stored | anCtlDone
		}
		return stored
	})

	local := caps.Caps{Tech: caps.TechCK400G | caps.TechCK200G, FEC: caps.FECRS | caps.FECRSLL, HPE: caps.HPELLR | caps.HPELinkTrain}
	got, err := n.Negotiate(context.Background(), local)
	require.NoError(t, err)
	require.Equal(t, caps.Caps{Tech: caps.TechCK200G | caps.TechCD100G, FEC: caps.FECRS, Pause: caps.PauseSym, HPE: caps.HPELLR}, got)
	require.Equal(t, uint64(local.Tech)|uint64(local.FEC)<<anFECShift, m.Get(regio.BusStatus, n.base+regANAdv))
	require.Equal(t, uint64(local.HPE), m.Get(regio.BusConfig, n.base+regANAdvNP))
	require.Equal(t, 3, m.Reads(regio.BusStatus, n.base+regANCtl))

	require.NoError(t, n.Stop())
	require.Zero(t, m.Get(regio.BusStatus, n.base+regANCtl))
}

func TestRegAutonegErrorAndCancel(t *testing.T) {
	m := regio.NewMemory()
	n := NewRegAutoneg(m, 0, 0, time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := n.Negotiate(ctx, caps.Caps{Tech: caps.TechCK400G})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	m.Set(regio.BusStatus, n.base+regANCtl, anCtlError)
	_, err = n.Negotiate(context.Background(), caps.Caps{Tech: caps.TechCK400G})
	require.Error(t, err)
}

func TestSimulatePCS(t *testing.T) {
	m := regio.NewMemory()
	SimulatePCS(m, 1, 1)
	p := NewRegPCS(m, 1, 1)
	ok, err := p.OK()
	require.NoError(t, err)
	require.True(t, ok)

	local := caps.Caps{Tech: caps.TechCK400G, FEC: caps.FECRS, HPE: caps.HPELLR}
	got, err := NewRegAutoneg(m, 1, 1, time.Millisecond).Negotiate(context.Background(), local)
	require.NoError(t, err)
	require.Equal(t, local, got)
}
