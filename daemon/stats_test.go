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

package daemon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/facebook/linkmgr/caps"
	"github.com/facebook/linkmgr/fec"
	"github.com/facebook/linkmgr/link"
	"github.com/facebook/linkmgr/llr"
	"github.com/facebook/linkmgr/notif"
)

func TestStatsCounters(t *testing.T) {
	s := NewStats()
	s.UpdateCounterBy("a", 2)
	s.UpdateCounterBy("a", 3)
	s.SetCounter("b", 7)
	s.SetCounter("b", 1)
	c := s.GetCounters()
	require.Equal(t, map[string]int64{"a": 5, "b": 1}, c)
	c["a"] = 100
	require.Equal(t, int64(5), s.GetCounters()["a"])
}

func TestStatsNotify(t *testing.T) {
	s := NewStats()
	now := time.Unix(1700000000, 0)
	s.Notify(nil, notif.Message{Dev: 0, Group: 1, Link: 1, Type: notif.LinkUp, Timestamp: now, Info: link.UpInfo{Tech: caps.TechCK400G}})
	s.Notify(nil, notif.Message{Dev: 0, Group: 1, Link: notif.NoLink, Type: notif.MediaPresent, InfoMap: 3})
	s.Notify(nil, notif.Message{Dev: 0, Group: 1, Link: 0, Type: notif.LinkUp})

	c := s.GetCounters()
	require.Equal(t, int64(2), c["notif.link-up"])
	require.Equal(t, int64(1), c["notif.media-present"])

	ev := s.Events()
	require.Len(t, ev, 3)
	require.Equal(t, "0/1/1", ev[0].Link)
	require.Equal(t, "link-up", ev[0].Type)
	require.Equal(t, now, ev[0].Timestamp)
	require.Contains(t, string(ev[0].Info), "ck_400g")
	require.Equal(t, "0/1", ev[1].Link)
	require.Equal(t, uint64(3), ev[1].InfoMap)
	require.Nil(t, ev[1].Info)
	require.Equal(t, "0/1/0", ev[2].Link)
}

func TestStatsEventRing(t *testing.T) {
	s := NewStats()
	for i := 0; i < maxEvents+10; i++ {
		s.Notify(nil, notif.Message{Link: uint8(i % 4), Type: notif.LinkDown, InfoMap: uint64(i)})
	}
	ev := s.Events()
	require.Len(t, ev, maxEvents)
	require.Equal(t, uint64(10), ev[0].InfoMap)
	require.Equal(t, uint64(maxEvents+9), ev[maxEvents-1].InfoMap)
	require.Equal(t, int64(maxEvents+10), s.GetCounters()["notif.link-down"])
}

func TestStatsCollectSysStats(t *testing.T) {
	s := NewStats()
	require.NoError(t, s.CollectSysStats())
	c := s.GetCounters()
	require.Greater(t, c["runtime.cpu.goroutines"], int64(0))
	require.Greater(t, c["process.rss"], int64(0))
}

func testInfo() link.Info {
	up := time.Unix(1700000000, 0)
	return link.Info{
		ID:        link.ID{Dev: 0, Group: 2, Num: 1},
		State:     link.StateUp,
		LaneMap:   0x0c,
		Tech:      caps.TechCK200G,
		FECMode:   caps.FECRS,
		Tries:     2,
		DownCause: link.CauseRemoteFault,
		Counters: link.Counters{
			Up:          3,
			UpRetry:     1,
			AsyncDown:   2,
			AsyncCauses: map[link.DownCause]uint64{link.CauseRemoteFault: 2},
		},
		Clocks: link.Clocks{TimeToUp: 1500 * time.Millisecond, UpTime: up},
		FEC: link.FECInfo{
			Running: true,
			Info:    fec.Info{UCW: 1, CCW: 1000000, GCW: 1000000, PeriodMs: 500},
		},
		LLR: &llr.Info{
			State:    llr.StateRunning,
			Data:     llr.Data{Loop: llr.LoopTime{Average: 640}},
			Counters: llr.Counters{Setup: 1},
		},
	}
}

func TestLinkStatus(t *testing.T) {
	info := testInfo()
	st := linkStatus(info)
	require.Equal(t, "0/2/1", st.ID)
	require.Equal(t, "up", st.State)
	require.Equal(t, uint8(0x0c), st.LaneMap)
	require.Equal(t, "ck_200g", st.Tech)
	require.Equal(t, caps.FECRS.String(), st.FEC)
	require.Equal(t, uint32(200), st.SpeedGbps)
	require.Equal(t, 2, st.Tries)
	require.Equal(t, "remote-fault", st.DownCause)
	require.Equal(t, int64(1700000000), st.UpTime)
	require.Greater(t, st.UCWBER, 0.0)
	require.Greater(t, st.CCWBER, st.UCWBER)
	require.Equal(t, "running", st.LLR)

	info.State = link.StateDown
	info.LLR = nil
	st = linkStatus(info)
	require.Equal(t, "down", st.State)
	require.Zero(t, st.UpTime)
	require.Zero(t, st.UCWBER)
	require.Empty(t, st.LLR)
}

func TestLinkCounters(t *testing.T) {
	c := map[string]int64{}
	linkCounters(testInfo(), c)
	require.Equal(t, int64(link.StateUp), c["link.0_2_1.state"])
	require.Equal(t, int64(3), c["link.0_2_1.up"])
	require.Equal(t, int64(1), c["link.0_2_1.up_retry"])
	require.Equal(t, int64(2), c["link.0_2_1.async_down"])
	require.Equal(t, int64(2), c["link.0_2_1.async_cause.remote-fault"])
	require.Equal(t, int64(1500), c["link.0_2_1.time_to_up_ms"])
	require.Equal(t, int64(1), c["link.0_2_1.fec.running"])
	require.Equal(t, int64(1000000), c["link.0_2_1.fec.ccw"])
	require.Equal(t, int64(1), c["link.0_2_1.llr.running"])
	require.Equal(t, int64(1), c["link.0_2_1.llr.setup"])
	require.Equal(t, int64(640), c["link.0_2_1.llr.loop_time_ns"])

	c = map[string]int64{}
	info := testInfo()
	info.LLR = nil
	linkCounters(info, c)
	_, ok := c["link.0_2_1.llr.state"]
	require.False(t, ok)
}
