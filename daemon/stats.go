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
	"encoding/json"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/facebook/linkmgr/fec"
	"github.com/facebook/linkmgr/link"
	"github.com/facebook/linkmgr/llr"
	"github.com/facebook/linkmgr/notif"
	"github.com/facebook/linkmgr/stats"
)

// maxEvents is how many notifications the events endpoint keeps
const maxEvents = 256

// Stats keeps daemon counters and recent notifications
type Stats struct {
	mux      sync.Mutex
	counters map[string]int64
	events   []stats.Event
	sys      SysStats
}

// NewStats created new instance of Stats
func NewStats() *Stats {
	return &Stats{
		counters: map[string]int64{},
	}
}

// UpdateCounterBy will increment counter
func (s *Stats) UpdateCounterBy(key string, count int64) {
	s.mux.Lock()
	s.counters[key] += count
	s.mux.Unlock()
}

// SetCounter will set a counter to the provided value.
func (s *Stats) SetCounter(key string, val int64) {
	s.mux.Lock()
	s.counters[key] = val
	s.mux.Unlock()
}

// GetCounters returns an map of counters
func (s *Stats) GetCounters() map[string]int64 {
	ret := make(map[string]int64)
	s.mux.Lock()
	for key, val := range s.counters {
		ret[key] = val
	}
	s.mux.Unlock()
	return ret
}

// Notify implements notif.Callback. It counts the message and keeps it for the events endpoint.
func (s *Stats) Notify(_ interface{}, msg notif.Message) {
	ev := stats.Event{
		Link:      fmt.Sprintf("%d/%d/%d", msg.Dev, msg.Group, msg.Link),
		Type:      msg.Type.String(),
		InfoMap:   msg.InfoMap,
		Timestamp: msg.Timestamp,
	}
	if msg.Link == notif.NoLink {
		ev.Link = fmt.Sprintf("%d/%d", msg.Dev, msg.Group)
	}
	if msg.Info != nil {
		b, err := json.Marshal(msg.Info)
		if err != nil {
			log.Warningf("encoding %s info: %v", msg.Type, err)
		} else {
			ev.Info = b
		}
	}
	s.mux.Lock()
	s.counters[stats.NotifPrefix+ev.Type]++
	if len(s.events) == maxEvents {
		s.events = append(s.events[:0], s.events[1:]...)
	}
	s.events = append(s.events, ev)
	s.mux.Unlock()
}

// Events returns recent notifications, oldest first
func (s *Stats) Events() []stats.Event {
	s.mux.Lock()
	defer s.mux.Unlock()
	return append([]stats.Event{}, s.events...)
}

// CollectSysStats updates process and runtime counters
func (s *Stats) CollectSysStats() error {
	sys, err := s.sys.Collect()
	if err != nil {
		return err
	}
	s.mux.Lock()
	for k, v := range sys {
		s.counters[k] = v
	}
	s.mux.Unlock()
	return nil
}

// linkStatus summarizes a link description
func linkStatus(info link.Info) *stats.LinkStatus {
	st := &stats.LinkStatus{
		ID:          info.ID.String(),
		State:       info.State.String(),
		LaneMap:     info.LaneMap,
		Tech:        info.Tech.String(),
		FEC:         info.FECMode.String(),
		SpeedGbps:   info.Tech.SpeedGbps(),
		Tries:       info.Tries,
		UpFailCause: info.UpFailCause.String(),
		DownCause:   info.DownCause.String(),
		InfoMap:     info.InfoMap.String(),
		LastError:   info.LastError,
	}
	if info.State == link.StateUp {
		st.UpTime = info.Clocks.UpTime.Unix()
		if ucw, ccw, err := fec.CalcBER(info.FEC.Info); err == nil {
			st.UCWBER = ucw.Float()
			st.CCWBER = ccw.Float()
		}
	}
	if info.LLR != nil {
		st.LLR = info.LLR.State.String()
	}
	return st
}

// linkCounters flattens a link description into counters
func linkCounters(info link.Info, counters map[string]int64) {
	prefix := stats.LinkPrefix + stats.LinkKey(info.ID.String()) + "."
	set := func(k string, v int64) {
		counters[prefix+k] = v
	}
	c := info.Counters
	set("state", int64(info.State))
	set("up", int64(c.Up))
	set("up_fail", int64(c.UpFail))
	set("up_retry", int64(c.UpRetry))
	set("up_canceled", int64(c.UpCanceled))
	set("down", int64(c.Down))
	set("async_down", int64(c.AsyncDown))
	set("fault", int64(c.Fault))
	set("ucw_warn", int64(c.UCWWarn))
	set("ccw_warn", int64(c.CCWWarn))
	set("reset", int64(c.Reset))
	set("tries", int64(info.Tries))
	set("time_to_up_ms", info.Clocks.TimeToUp.Milliseconds())
	for cause, n := range c.AsyncCauses {
		set("async_cause."+cause.String(), int64(n))
	}
	f := info.FEC
	set("fec.running", b2i(f.Running))
	set("fec.ucw", int64(f.Info.UCW))
	set("fec.ccw", int64(f.Info.CCW))
	set("fec.gcw", int64(f.Info.GCW))
	if info.LLR != nil {
		lc := info.LLR.Counters
		set("llr.state", int64(info.LLR.State))
		set("llr.running", b2i(info.LLR.State == llr.StateRunning))
		set("llr.setup", int64(lc.Setup))
		set("llr.setup_timeout", int64(lc.SetupTimeout))
		set("llr.start_timeout", int64(lc.StartTimeout))
		set("llr.canceled", int64(lc.Canceled))
		set("llr.loop_time_ns", int64(info.LLR.Data.Loop.Average))
	}
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
