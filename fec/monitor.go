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
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=monitor.go -destination=mock_fec.go -package=fec

// Source reads hardware codeword counters of a link
type Source interface {
	Counters() (Counters, error)
}

// Event is a threshold crossing found by the monitor
type Event int

// Events
const (
	EventUCWDown Event = iota
	EventCCWDown
	EventUCWWarn
	EventCCWWarn
)

// EventToString is a map from Event to string
var EventToString = map[Event]string{
	EventUCWDown: "ucw_down",
	EventCCWDown: "ccw_down",
	EventUCWWarn: "ucw_warn",
	EventCCWWarn: "ccw_warn",
}

func (e Event) String() string {
	return EventToString[e]
}

// Handler receives threshold crossings on the monitor goroutine. It must not call Stop.
type Handler func(ev Event, info Info)

// WarnState tracks warn limit crossings
type WarnState struct {
	UCWCrossed bool      `json:"ucw_crossed"`
	UCWTime    time.Time `json:"ucw_time"`
	UCWCount   uint64    `json:"ucw_count"`
	CCWCrossed bool      `json:"ccw_crossed"`
	CCWTime    time.Time `json:"ccw_time"`
	CCWCount   uint64    `json:"ccw_count"`
}

type sample struct {
	counters  Counters
	timestamp time.Time
}

// Monitor samples counters periodically and checks them against limits
type Monitor struct {
	src     Source
	handler Handler
	now     func() time.Time

	mux       sync.Mutex
	curr      *sample
	prev      *sample
	buf       [2]sample
	info      Info
	tail      Tail
	limits    Limits
	chances   int
	ucwChance int
	ccwChance int
	warn      WarnState
	upCache   Counters
	downCache Counters

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewMonitor returns a disarmed monitor
func NewMonitor(src Source, handler Handler) *Monitor {
	m := &Monitor{
		src:     src,
		handler: handler,
		now:     time.Now,
		chances: DefaultDownChances,
	}
	m.curr = &m.buf[0]
	m.prev = &m.buf[1]
	return m
}

// SetLimits replaces limits in effect. A zero period stops sampling after the current run.
func (m *Monitor) SetLimits(l Limits, downChances int) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if l.CCWDown != 0 && l.CCWWarn > l.CCWDown {
		log.Warningf("fec: CCW warning limit set greater than down limit (%d > %d)", l.CCWWarn, l.CCWDown)
	}
	if l.UCWDown != 0 && l.UCWWarn > l.UCWDown {
		log.Warningf("fec: UCW warning limit set greater than down limit (%d > %d)", l.UCWWarn, l.UCWDown)
	}
	m.limits = l
	if downChances > 0 {
		m.chances = downChances
	}
	m.info.Monitor = l
}

// Limits returns limits in effect
func (m *Monitor) Limits() Limits {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.limits
}

// Start arms the sampling timer. It takes a baseline sample first.
func (m *Monitor) Start(l Limits, downChances int) {
	m.Stop()
	m.SetLimits(l, downChances)
	if l.PeriodMs <= 0 {
		log.Debugf("fec: monitor period zero")
		return
	}
	if _, _, err := m.Sample(); err != nil {
		log.Warningf("fec: baseline sample failed: %v", err)
	}
	m.mux.Lock()
	m.ucwChance = 0
	m.ccwChance = 0
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.run(m.stop, m.done)
	m.mux.Unlock()
	log.Debugf("fec: monitor timer started (period = %dms)", l.PeriodMs)
}

// Stop disarms the timer and waits for a sample in flight
func (m *Monitor) Stop() {
	m.mux.Lock()
	if !m.running {
		m.mux.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.mux.Unlock()
	<-done
	log.Debugf("fec: monitor stopped")
}

// Running reports whether the sampling timer is armed. It turns false once a down limit fired.
func (m *Monitor) Running() bool {
	m.mux.Lock()
	defer m.mux.Unlock()
	if !m.running {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

func (m *Monitor) period() time.Duration {
	m.mux.Lock()
	defer m.mux.Unlock()
	return time.Duration(m.limits.PeriodMs) * time.Millisecond
}

func (m *Monitor) run(stop, done chan struct{}) {
	defer close(done)
	period := m.period()
	if period <= 0 {
		return
	}
	t := time.NewTimer(period)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}
		if !m.tick() {
			return
		}
		if period = m.period(); period <= 0 {
			log.Debugf("fec: monitor period zero")
			return
		}
		t.Reset(period)
	}
}

// tick runs one sample and check. It returns false once the link was taken down.
func (m *Monitor) tick() bool {
	if _, _, err := m.Sample(); err != nil {
		log.Errorf("fec: reading counters failed: %v", err)
		return true
	}
	return m.check()
}

// Sample reads counters, rotates the sample pair and recomputes deltas
func (m *Monitor) Sample() (Info, Tail, error) {
	c, err := m.src.Counters()
	if err != nil {
		return Info{}, Tail{}, err
	}
	now := m.now()
	m.mux.Lock()
	defer m.mux.Unlock()
	m.prev, m.curr = m.curr, m.prev
	*m.curr = sample{counters: c, timestamp: now}
	var periodMs uint32
	if !m.prev.timestamp.IsZero() {
		periodMs = uint32(m.curr.timestamp.Sub(m.prev.timestamp).Milliseconds())
	}
	m.info, m.tail = Delta(m.prev.counters, m.curr.counters, periodMs)
	m.info.Monitor = m.limits
	if m.info.UCW > 0 || m.info.CCW > 0 {
		log.Debugf("fec: data calc (ucw = %d, ccw = %d, gcw = %d, period = %dms)",
			m.info.UCW, m.info.CCW, m.info.GCW, periodMs)
	}
	return m.info, m.tail, nil
}

// Reset forgets previous samples so the next Sample becomes a baseline
func (m *Monitor) Reset() {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.buf = [2]sample{}
	m.info = Info{Monitor: m.limits}
	m.tail = Tail{}
}

func (m *Monitor) check() bool {
	m.mux.Lock()
	info := m.info
	l := m.limits
	if info.UCWExceeds(l.UCWDown) {
		m.ucwChance++
	} else {
		m.ucwChance = 0
	}
	if info.CCWExceeds(l.CCWDown) {
		m.ccwChance++
	} else {
		m.ccwChance = 0
	}
	log.Debugf("fec: data check (ucw = %d, ccw = %d, period = %dms, ucw_chance = %d, ccw_chance = %d)",
		info.UCW, info.CCW, info.PeriodMs, m.ucwChance, m.ccwChance)

	var events []Event
	down := false
	switch {
	case m.ucwChance >= m.chances:
		log.Errorf("fec: UCW exceeded down limit (UCW = %d, CCW = %d, ucw_chance = %d)", info.UCW, info.CCW, m.ucwChance)
		m.ucwChance = 0
		events = append(events, EventUCWDown)
		down = true
	case m.ccwChance >= m.chances:
		log.Errorf("fec: CCW exceeded down limit (UCW = %d, CCW = %d, ccw_chance = %d)", info.UCW, info.CCW, m.ccwChance)
		m.ccwChance = 0
		events = append(events, EventCCWDown)
		down = true
	}
	if !down {
		now := m.now()
		if info.UCWExceeds(l.UCWWarn) {
			if !m.warn.UCWCrossed {
				log.Warningf("fec: UCW exceeded warn limit (UCW = %d, CCW = %d)", info.UCW, info.CCW)
				events = append(events, EventUCWWarn)
				m.warn.UCWCrossed = true
				m.warn.UCWTime = now
			}
			m.warn.UCWCount++
		}
		if info.CCWExceeds(l.CCWWarn) {
			if !m.warn.CCWCrossed {
				log.Warningf("fec: CCW exceeded warn limit (UCW = %d, CCW = %d)", info.UCW, info.CCW)
				events = append(events, EventCCWWarn)
				m.warn.CCWCrossed = true
				m.warn.CCWTime = now
			}
			m.warn.CCWCount++
		}
	}
	m.mux.Unlock()

	if m.handler != nil {
		for _, ev := range events {
			m.handler(ev, info)
		}
	}
	return !down
}

// Info returns the last computed delta
func (m *Monitor) Info() Info {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.info
}

// Tail returns the last computed histogram delta
func (m *Monitor) Tail() Tail {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.tail
}

// Warn returns the warn crossing state
func (m *Monitor) Warn() WarnState {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.warn
}

// ClearWarn re-enables warn notifications
func (m *Monitor) ClearWarn() {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.warn.UCWCrossed = false
	m.warn.CCWCrossed = false
	m.warn.UCWTime = time.Time{}
	m.warn.CCWTime = time.Time{}
}

// CacheUp snapshots counters at link up. A read failure clears the cache.
func (m *Monitor) CacheUp() {
	c, err := m.src.Counters()
	if err != nil {
		log.Warningf("fec: up cache read failed: %v", err)
		c = Counters{}
	}
	m.mux.Lock()
	m.upCache = c
	m.downCache = Counters{}
	m.mux.Unlock()
}

// CacheDown snapshots counters at link down
func (m *Monitor) CacheDown() {
	c, err := m.src.Counters()
	if err != nil {
		log.Warningf("fec: down cache read failed: %v", err)
		return
	}
	m.mux.Lock()
	m.downCache = c
	m.mux.Unlock()
}

// UpCache returns counters snapshotted at link up
func (m *Monitor) UpCache() Counters {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.upCache
}

// DownCache returns counters snapshotted at link down
func (m *Monitor) DownCache() Counters {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.downCache
}
