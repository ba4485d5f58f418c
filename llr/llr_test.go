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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/facebook/linkmgr/caps"
	"github.com/facebook/linkmgr/notif"
)

var errFake = errors.New("fake")

type fakeNotifier struct {
	mux   sync.Mutex
	types []notif.Type
}

func (n *fakeNotifier) Enqueue(_ uint8, t notif.Type, _ interface{}, _ uint64) error {
	n.mux.Lock()
	n.types = append(n.types, t)
	n.mux.Unlock()
	return nil
}

func (n *fakeNotifier) count(t notif.Type) int {
	n.mux.Lock()
	defer n.mux.Unlock()
	c := 0
	for _, v := range n.types {
		if v == t {
			c++
		}
	}
	return c
}

func (n *fakeNotifier) all() []notif.Type {
	n.mux.Lock()
	defer n.mux.Unlock()
	return append([]notif.Type{}, n.types...)
}

type stateRecorder chan State

func (r stateRecorder) cb(s State, _ Data) {
	r <- s
}

func (r stateRecorder) wait(t *testing.T, want State) {
	t.Helper()
	select {
	case got := <-r:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no callback", "waiting for %s", want)
	}
}

// newTestLLR returns a configured instance on a CK400G single link group
func newTestLLR(t *testing.T, cfg Config) (*LLR, *MockHardware, *fakeNotifier) {
	ctrl := gomock.NewController(t)
	hw := NewMockHardware(ctrl)
	n := &fakeNotifier{}
	l := New(0, 1, 0, hw, n)
	require.NoError(t, l.ConfigSet(cfg))
	l.GroupSet(Group{Tech: caps.TechCK400G, Furcation: caps.FurcationX1})
	hw.EXPECT().Off().Return(nil).AnyTimes()
	return l, hw, n
}

// expectMeasure makes the loop time counter read zero once, then 240ns
func expectMeasure(hw *MockHardware) *int32 {
	var reads int32
	hw.EXPECT().Configure(gomock.Any()).Return(nil).AnyTimes()
	hw.EXPECT().LoopTimingStart().Return(nil).AnyTimes()
	hw.EXPECT().LoopTime().DoAndReturn(func() (uint64, error) {
		if atomic.AddInt32(&reads, 1) == 1 {
			return 0, nil
		}
		return 240, nil
	}).AnyTimes()
	hw.EXPECT().SetCapacity(uint64(476), uint64(951)).Return(nil).AnyTimes()
	return &reads
}

func TestSetupStartStop(t *testing.T) {
	l, hw, n := newTestLLR(t, DefaultConfig())
	reads := expectMeasure(hw)
	hw.EXPECT().On(ModeOn).Return(nil)
	var polls int32
	hw.EXPECT().Status().DoAndReturn(func() (HWState, error) {
		if atomic.AddInt32(&polls, 1) < 3 {
			return HWInit, nil
		}
		return HWAdvance, nil
	}).AnyTimes()
	hw.EXPECT().Discard().Return(nil)

	r := make(stateRecorder, 4)
	require.NoError(t, l.Setup(r.cb, false))
	r.wait(t, StateSetup)
	require.Equal(t, StateSetup, l.State())
	require.Equal(t, int32(LoopTimeSamples+1), atomic.LoadInt32(reads))

	info := l.Info()
	require.True(t, info.DataValid)
	require.Equal(t, uint64(240), info.Data.Loop.Average)
	require.Equal(t, uint64(240), info.Data.Loop.Calculated)
	require.Equal(t, uint64(476), info.Data.CapData)
	require.Equal(t, uint64(951), info.Data.CapSeq)
	require.Equal(t, uint64(1), info.Counters.Setup)

	require.ErrorIs(t, l.Setup(r.cb, false), ErrAlready)

	require.NoError(t, l.Start(r.cb))
	r.wait(t, StateRunning)
	require.ErrorIs(t, l.Start(r.cb), ErrAlready)

	require.NoError(t, l.Stop())
	require.Equal(t, StateConfigured, l.State())
	require.Equal(t, FailCommand, l.Info().LastFail)
	require.Equal(t, []notif.Type{notif.LLRSetup, notif.LLRRunning}, n.all())
}

func TestCommandsInWrongState(t *testing.T) {
	ctrl := gomock.NewController(t)
	hw := NewMockHardware(ctrl)
	l := New(0, 0, 0, hw, nil)
	require.Equal(t, StateOff, l.State())
	require.ErrorIs(t, l.Setup(nil, false), ErrInvalidState)
	require.ErrorIs(t, l.Start(nil), ErrInvalidState)
	require.NoError(t, l.Stop())

	bad := DefaultConfig()
	bad.SetupTimeout = 0
	require.ErrorIs(t, l.ConfigSet(bad), ErrConfig)
	require.NoError(t, l.ConfigSet(DefaultConfig()))
	require.Equal(t, StateConfigured, l.State())
	require.ErrorIs(t, l.Start(nil), ErrInvalidState)

	// no group technology yet
	require.ErrorIs(t, l.Setup(nil, false), ErrConfig)
	require.Equal(t, StateConfigured, l.State())
	require.Equal(t, uint64(2), l.Info().Counters.SetupFail)
}

func TestSetupTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetupTimeout = 20 * time.Millisecond
	l, hw, n := newTestLLR(t, cfg)
	hw.EXPECT().Configure(gomock.Any()).Return(nil).AnyTimes()
	hw.EXPECT().LoopTimingStart().Return(nil).AnyTimes()
	hw.EXPECT().LoopTime().Return(uint64(0), nil).AnyTimes()

	r := make(stateRecorder, 2)
	require.NoError(t, l.Setup(r.cb, false))
	r.wait(t, StateSetupTimeout)
	info := l.Info()
	require.Equal(t, StateSetupTimeout, info.State)
	require.Equal(t, FailSetupTimeout, info.LastFail)
	require.False(t, info.DataValid)
	require.Equal(t, 1, n.count(notif.LLRSetupTO))

	// setup may be retried after a timeout
	require.NoError(t, l.Setup(r.cb, false))
	r.wait(t, StateSetupTimeout)
	require.Equal(t, uint64(2), l.Info().Counters.SetupTimeout)
}

func TestStopCancelsSetup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetupTimeout = time.Minute
	l, hw, n := newTestLLR(t, cfg)
	started := make(chan struct{})
	var once sync.Once
	hw.EXPECT().Configure(gomock.Any()).Return(nil)
	hw.EXPECT().LoopTimingStart().Return(nil)
	hw.EXPECT().LoopTime().DoAndReturn(func() (uint64, error) {
		once.Do(func() { close(started) })
		return 0, nil
	}).AnyTimes()

	r := make(stateRecorder, 2)
	require.NoError(t, l.Setup(r.cb, false))
	<-started
	require.ErrorIs(t, l.Setup(r.cb, false), ErrBusy)
	require.NoError(t, l.Stop())
	require.Equal(t, StateConfigured, l.State())
	r.wait(t, StateConfigured)
	require.Equal(t, FailCanceled, l.Info().LastFail)
	require.Equal(t, 1, n.count(notif.LLRCanceled))
}

func TestSetupHardwareError(t *testing.T) {
	l, hw, n := newTestLLR(t, DefaultConfig())
	hw.EXPECT().Configure(gomock.Any()).Return(errFake)

	r := make(stateRecorder, 1)
	require.NoError(t, l.Setup(r.cb, false))
	r.wait(t, StateConfigured)
	require.Equal(t, FailSetupConfig, l.Info().LastFail)
	require.Equal(t, 1, n.count(notif.LLRError))
}

func TestReuseTiming(t *testing.T) {
	l, hw, _ := newTestLLR(t, DefaultConfig())
	reads := expectMeasure(hw)

	r := make(stateRecorder, 2)
	require.NoError(t, l.Setup(r.cb, false))
	r.wait(t, StateSetup)
	measured := atomic.LoadInt32(reads)
	require.NoError(t, l.Stop())

	require.NoError(t, l.Setup(r.cb, true))
	r.wait(t, StateSetup)
	require.Equal(t, measured, atomic.LoadInt32(reads))

	// without valid data the measurement runs again
	require.NoError(t, l.Stop())
	l.ClearData()
	require.NoError(t, l.Setup(r.cb, true))
	r.wait(t, StateSetup)
	require.Greater(t, atomic.LoadInt32(reads), measured)
}

func TestStartNotAdvancing(t *testing.T) {
	l, hw, n := newTestLLR(t, DefaultConfig())
	expectMeasure(hw)
	hw.EXPECT().On(ModeOn).Return(nil)
	hw.EXPECT().Status().Return(HWHalt, nil)

	r := make(stateRecorder, 2)
	require.NoError(t, l.Setup(r.cb, false))
	r.wait(t, StateSetup)
	require.NoError(t, l.Start(r.cb))
	r.wait(t, StateSetup)
	require.Equal(t, FailStartNotAdvancing, l.Info().LastFail)
	require.Equal(t, 1, n.count(notif.LLRError))
}

func TestStartTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StartTimeout = 10 * time.Millisecond
	l, hw, n := newTestLLR(t, cfg)
	expectMeasure(hw)
	hw.EXPECT().On(ModeOn).Return(nil).Times(2)
	hw.EXPECT().Status().Return(HWInit, nil).AnyTimes()

	r := make(stateRecorder, 2)
	require.NoError(t, l.Setup(r.cb, false))
	r.wait(t, StateSetup)
	require.NoError(t, l.Start(r.cb))
	r.wait(t, StateStartTimeout)
	require.Equal(t, FailStartTimeout, l.Info().LastFail)

	// start may be retried from the timeout state
	require.NoError(t, l.Start(r.cb))
	r.wait(t, StateStartTimeout)
	require.Equal(t, 2, n.count(notif.LLRStartTO))
}

func TestStartContinuousTries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StartTimeout = 5 * time.Millisecond
	l, hw, n := newTestLLR(t, cfg)
	require.NoError(t, l.PolicySet(Policy{ContinuousStartTries: true}))
	expectMeasure(hw)
	hw.EXPECT().On(ModeOn).Return(nil).MinTimes(3)
	hw.EXPECT().Status().Return(HWInit, nil).AnyTimes()
	hw.EXPECT().Discard().Return(nil)

	r := make(stateRecorder, 2)
	require.NoError(t, l.Setup(r.cb, false))
	r.wait(t, StateSetup)
	require.NoError(t, l.Start(r.cb))
	require.Eventually(t, func() bool {
		return n.count(notif.LLRStartTO) >= 2
	}, 2*time.Second, time.Millisecond)
	require.Equal(t, StateStartBusy, l.State())
	require.Len(t, r, 0)

	require.NoError(t, l.Stop())
	r.wait(t, StateConfigured)
	require.Equal(t, StateConfigured, l.State())
	require.Equal(t, 1, n.count(notif.LLRCanceled))
}

func TestDelete(t *testing.T) {
	l, _, _ := newTestLLR(t, DefaultConfig())
	require.NoError(t, l.Delete())
	<-l.Deleted()
	require.ErrorIs(t, l.Delete(), ErrDeleted)
	require.ErrorIs(t, l.Setup(nil, false), ErrDeleted)
	require.ErrorIs(t, l.Stop(), ErrDeleted)
	require.Equal(t, StateOff, l.State())
}

func TestDeleteCancelsSetup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetupTimeout = time.Minute
	l, hw, _ := newTestLLR(t, cfg)
	hw.EXPECT().Configure(gomock.Any()).Return(nil)
	hw.EXPECT().LoopTimingStart().Return(nil)
	hw.EXPECT().LoopTime().Return(uint64(0), nil).AnyTimes()

	r := make(stateRecorder, 1)
	require.NoError(t, l.Setup(r.cb, false))
	require.NoError(t, l.Delete())
	r.wait(t, StateConfigured)
	require.Equal(t, StateOff, l.State())
}
