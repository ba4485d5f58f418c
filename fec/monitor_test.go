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

package fec

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(ms int) {
	c.t = c.t.Add(time.Duration(ms) * time.Millisecond)
}

type recorder struct {
	sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event, _ Info) {
	r.Lock()
	defer r.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) get() []Event {
	r.Lock()
	defer r.Unlock()
	return append([]Event(nil), r.events...)
}

// newTestMonitor returns a monitor reading *c on a fake clock, with a baseline taken
func newTestMonitor(t *testing.T, c *Counters, l Limits, chances int) (*Monitor, *fakeClock, *recorder) {
	ctrl := gomock.NewController(t)
	src := NewMockSource(ctrl)
	src.EXPECT().Counters().DoAndReturn(func() (Counters, error) { return *c, nil }).AnyTimes()
	rec := &recorder{}
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	m := NewMonitor(src, rec.handle)
	m.now = clk.now
	m.SetLimits(l, chances)
	_, _, err := m.Sample()
	require.NoError(t, err)
	return m, clk, rec
}

func TestMonitorDownAfterChances(t *testing.T) {
	c := &Counters{GCW: 1000}
	m, clk, rec := newTestMonitor(t, c, Limits{UCWDown: 10, PeriodMs: 500}, 2)

	// 100 UCW over 500ms is 200/s
	c.UCW += 100
	clk.advance(500)
	require.True(t, m.tick())
	require.Empty(t, rec.get())
	require.Equal(t, uint64(100), m.Info().UCW)
	require.Equal(t, uint32(500), m.Info().PeriodMs)

	c.UCW += 100
	clk.advance(500)
	require.False(t, m.tick())
	require.Equal(t, []Event{EventUCWDown}, rec.get())
}

func TestMonitorChancesReset(t *testing.T) {
	c := &Counters{}
	m, clk, rec := newTestMonitor(t, c, Limits{UCWDown: 10, PeriodMs: 500}, 2)

	for _, ucw := range []uint64{100, 0, 100, 0, 100} {
		c.UCW += ucw
		clk.advance(500)
		require.True(t, m.tick())
	}
	require.Empty(t, rec.get())
}

func TestMonitorUCWBeforeCCW(t *testing.T) {
	c := &Counters{}
	m, clk, rec := newTestMonitor(t, c, Limits{UCWDown: 10, CCWDown: 10, UCWWarn: 1, PeriodMs: 500}, 1)

	c.UCW += 100
	c.CCW += 100
	clk.advance(500)
	require.False(t, m.tick())
	require.Equal(t, []Event{EventUCWDown}, rec.get())
	require.False(t, m.Warn().UCWCrossed, "no warn once the link goes down")
}

func TestMonitorCCWDown(t *testing.T) {
	c := &Counters{}
	m, clk, rec := newTestMonitor(t, c, Limits{UCWDown: 10, CCWDown: 10, PeriodMs: 500}, 1)

	c.CCW += 100
	clk.advance(500)
	require.False(t, m.tick())
	require.Equal(t, []Event{EventCCWDown}, rec.get())
}

func TestMonitorWarnOneShot(t *testing.T) {
	c := &Counters{}
	m, clk, rec := newTestMonitor(t, c, Limits{UCWWarn: 5, CCWWarn: 1000, PeriodMs: 500}, 2)

	for i := 0; i < 3; i++ {
		c.UCW += 10
		clk.advance(500)
		require.True(t, m.tick())
	}
	require.Equal(t, []Event{EventUCWWarn}, rec.get())
	w := m.Warn()
	require.True(t, w.UCWCrossed)
	require.Equal(t, uint64(3), w.UCWCount)
	require.Equal(t, clk.t.Add(-1000*time.Millisecond), w.UCWTime)
	require.False(t, w.CCWCrossed)

	m.ClearWarn()
	require.False(t, m.Warn().UCWCrossed)
	c.UCW += 10
	c.CCW += 1000
	clk.advance(500)
	require.True(t, m.tick())
	require.Equal(t, []Event{EventUCWWarn, EventUCWWarn, EventCCWWarn}, rec.get())
	require.Equal(t, uint64(4), m.Warn().UCWCount)
}

func TestMonitorReadError(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := NewMockSource(ctrl)
	m := NewMonitor(src, func(Event, Info) { t.Fatal("unexpected event") })
	m.SetLimits(Limits{UCWDown: 1, PeriodMs: 500}, 1)

	src.EXPECT().Counters().Return(Counters{}, errors.New("bus error"))
	require.True(t, m.tick(), "read errors keep the monitor armed")
	require.Equal(t, Info{Monitor: Limits{UCWDown: 1, PeriodMs: 500}}, m.Info())
}

func TestMonitorCaches(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := NewMockSource(ctrl)
	m := NewMonitor(src, nil)

	up := Counters{UCW: 1, CCW: 2, GCW: 3}
	down := Counters{UCW: 4, CCW: 5, GCW: 6}
	gomock.InOrder(
		src.EXPECT().Counters().Return(down, nil),
		src.EXPECT().Counters().Return(up, nil),
		src.EXPECT().Counters().Return(Counters{}, errors.New("bus error")),
		src.EXPECT().Counters().Return(Counters{}, errors.New("bus error")),
	)
	m.CacheDown()
	require.Equal(t, down, m.DownCache())
	m.CacheUp()
	require.Equal(t, up, m.UpCache())
	require.Equal(t, Counters{}, m.DownCache(), "up clears the down cache")

	m.CacheDown()
	require.Equal(t, Counters{}, m.DownCache())
	m.CacheUp()
	require.Equal(t, Counters{}, m.UpCache())
}

func TestMonitorStartStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := NewMockSource(ctrl)
	var mu sync.Mutex
	c := Counters{}
	src.EXPECT().Counters().DoAndReturn(func() (Counters, error) {
		mu.Lock()
		defer mu.Unlock()
		c.UCW += 1000000
		return c, nil
	}).AnyTimes()

	events := make(chan Event, 4)
	m := NewMonitor(src, func(ev Event, _ Info) { events <- ev })
	m.Start(Limits{UCWDown: 10, PeriodMs: 10}, 1)
	require.True(t, m.Running())

	select {
	case ev := <-events:
		require.Equal(t, EventUCWDown, ev)
	case <-time.After(5 * time.Second):
		t.Fatal("no down event")
	}
	require.Eventually(t, func() bool { return !m.Running() }, time.Second, 5*time.Millisecond)
	m.Stop()
	require.Empty(t, events)
}

func TestMonitorZeroPeriod(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := NewMockSource(ctrl)
	m := NewMonitor(src, nil)
	m.Start(Limits{UCWDown: 10}, 1)
	require.False(t, m.Running())
	m.Stop()
}

func TestMonitorStopWhileIdle(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := NewMockSource(ctrl)
	src.EXPECT().Counters().Return(Counters{}, nil).AnyTimes()
	m := NewMonitor(src, nil)
	m.Start(Limits{UCWDown: 10, PeriodMs: 1000}, 1)
	require.True(t, m.Running())
	m.Stop()
	require.False(t, m.Running())
	m.Stop()
}
