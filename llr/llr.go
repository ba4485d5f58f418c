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
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/facebook/linkmgr/notif"
)

// DeleteTimeout bounds how long Delete waits for in-flight commands
const DeleteTimeout = 2 * time.Second

// loop time polling
const (
	loopTimeTries = 100
	pollInterval  = time.Millisecond
)

var errNotAdvancing = errors.New("not advancing")

// Notifier queues notifications of a link group
type Notifier interface {
	Enqueue(link uint8, t notif.Type, info interface{}, infoMap uint64) error
}

// Counters of LLR commands and outcomes
type Counters struct {
	SetupCmd     uint64 `json:"setup_cmd"`
	SetupFail    uint64 `json:"setup_fail"`
	Setup        uint64 `json:"setup"`
	SetupTimeout uint64 `json:"setup_timeout"`
	StartCmd     uint64 `json:"start_cmd"`
	StartFail    uint64 `json:"start_fail"`
	Running      uint64 `json:"running"`
	StartTimeout uint64 `json:"start_timeout"`
	StopCmd      uint64 `json:"stop_cmd"`
	Canceled     uint64 `json:"canceled"`
}

// Info is a snapshot of an LLR instance
type Info struct {
	State        State     `json:"state"`
	Config       Config    `json:"config"`
	Policy       Policy    `json:"policy"`
	Group        Group     `json:"group"`
	Data         Data      `json:"data"`
	DataValid    bool      `json:"data_valid"`
	LastFail     FailCause `json:"last_fail_cause"`
	LastFailTime time.Time `json:"last_fail_time"`
	Counters     Counters  `json:"counters"`
}

// LLR is the link level retry controller of one link.
// Every command holds a reference for its duration so Delete can't free the instance under it.
type LLR struct {
	dev   uint8
	group uint8
	num   uint8
	hw    Hardware
	ntf   Notifier

	pollInterval time.Duration
	stopWait     time.Duration

	mux          sync.Mutex
	state        State
	cfg          Config
	policy       Policy
	grp          Group
	data         Data
	dataValid    bool
	lastFail     FailCause
	lastFailTime time.Time
	counters     Counters
	cancel       context.CancelFunc
	opDone       chan struct{}

	refs       int32
	deleteOnce sync.Once
	deleted    chan struct{}
}

// New returns an LLR instance in StateOff holding its initial reference
func New(dev, group, num uint8, hw Hardware, ntf Notifier) *LLR {
	return &LLR{
		dev:          dev,
		group:        group,
		num:          num,
		hw:           hw,
		ntf:          ntf,
		pollInterval: pollInterval,
		stopWait:     DeleteTimeout,
		state:        StateOff,
		cfg:          DefaultConfig(),
		refs:         1,
		deleted:      make(chan struct{}),
	}
}

func (l *LLR) String() string {
	return fmt.Sprintf("llr %d/%d/%d", l.dev, l.group, l.num)
}

// get takes a reference unless the instance is already released
func (l *LLR) get() bool {
	for {
		n := atomic.LoadInt32(&l.refs)
		if n <= 0 {
			log.Warningf("%s: reference unavailable", l)
			return false
		}
		if atomic.CompareAndSwapInt32(&l.refs, n, n+1) {
			return true
		}
	}
}

func (l *LLR) put() {
	if atomic.AddInt32(&l.refs, -1) == 0 {
		l.release()
	}
}

func (l *LLR) release() {
	log.Debugf("%s: release", l)
	if err := l.stop(); err != nil {
		log.Warningf("%s: release stop failed: %v", l, err)
	}
	l.mux.Lock()
	l.state = StateOff
	l.mux.Unlock()
	close(l.deleted)
}

// Delete drops the initial reference and waits for the last command to finish
func (l *LLR) Delete() error {
	dropped := false
	l.deleteOnce.Do(func() {
		dropped = true
		l.put()
	})
	if !dropped {
		return ErrDeleted
	}
	select {
	case <-l.deleted:
		log.Debugf("%s: del complete", l)
		return nil
	case <-time.After(DeleteTimeout):
		log.Errorf("%s: del completion timeout", l)
		return fmt.Errorf("%s: delete: %w", l, ErrTimeout)
	}
}

// Deleted is closed once the instance has been released
func (l *LLR) Deleted() <-chan struct{} {
	return l.deleted
}

func (l *LLR) notify(t notif.Type, info interface{}) {
	if l.ntf == nil {
		return
	}
	if err := l.ntf.Enqueue(l.num, t, info, 0); err != nil {
		log.Warningf("%s: notif enqueue %s failed: %v", l, t, err)
	}
}

// setFail records why the LLR left an active state. Caller holds mux.
func (l *LLR) setFail(c FailCause) {
	l.lastFail = c
	l.lastFailTime = time.Now()
}

// ConfigSet applies a new config. Only allowed while not set up.
func (l *LLR) ConfigSet(cfg Config) error {
	if !l.get() {
		return ErrDeleted
	}
	defer l.put()
	if err := cfg.Validate(); err != nil {
		return err
	}
	l.mux.Lock()
	defer l.mux.Unlock()
	switch l.state {
	case StateOff, StateConfigured, StateSetupTimeout:
		l.cfg = cfg
		l.state = StateConfigured
		log.Debugf("%s: config set (setup timeout = %v, start timeout = %v)", l, cfg.SetupTimeout, cfg.StartTimeout)
		return nil
	}
	return fmt.Errorf("%s: config set in %s: %w", l, l.state, ErrInvalidState)
}

// PolicySet applies a new policy, effective for the next timeout
func (l *LLR) PolicySet(p Policy) error {
	if !l.get() {
		return ErrDeleted
	}
	defer l.put()
	l.mux.Lock()
	l.policy = p
	l.mux.Unlock()
	return nil
}

// GroupSet updates the port group description used by the next setup
func (l *LLR) GroupSet(g Group) {
	l.mux.Lock()
	l.grp = g
	l.mux.Unlock()
}

// State returns the current state
func (l *LLR) State() State {
	l.mux.Lock()
	defer l.mux.Unlock()
	return l.state
}

// Info returns a snapshot
func (l *LLR) Info() Info {
	l.mux.Lock()
	defer l.mux.Unlock()
	return Info{
		State:        l.state,
		Config:       l.cfg,
		Policy:       l.policy,
		Group:        l.grp,
		Data:         l.data,
		DataValid:    l.dataValid,
		LastFail:     l.lastFail,
		LastFailTime: l.lastFailTime,
		Counters:     l.counters,
	}
}

// ClearData forgets the last loop time measurement
func (l *LLR) ClearData() {
	l.mux.Lock()
	l.data = Data{}
	l.dataValid = false
	l.mux.Unlock()
}

func busy(s State) bool {
	switch s {
	case StateSetupBusy, StateStartBusy, StateCanceling, StateStopBusy:
		return true
	}
	return false
}

// launch starts op in the background with a fresh cancelable context. Caller holds mux.
func (l *LLR) launch(timeout time.Duration, op func(opCtx, ctx context.Context)) {
	opCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	done := make(chan struct{})
	l.opDone = done
	go func() {
		ctx, tcancel := context.WithTimeout(opCtx, timeout)
		defer tcancel()
		op(opCtx, ctx)
	}()
}

// finish marks the in-flight operation complete. Caller holds mux.
func (l *LLR) finish() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	if l.opDone != nil {
		close(l.opDone)
		l.opDone = nil
	}
}

// Setup measures loop time and programs replay capacity in the background.
// With reuseTiming a previous valid measurement is reused. cb may be nil.
func (l *LLR) Setup(cb Callback, reuseTiming bool) error {
	if !l.get() {
		return ErrDeleted
	}
	defer l.put()

	l.mux.Lock()
	defer l.mux.Unlock()
	l.counters.SetupCmd++
	switch {
	case l.state == StateSetup:
		log.Debugf("%s: setup - already setup", l)
		return ErrAlready
	case busy(l.state):
		l.counters.SetupFail++
		return fmt.Errorf("%s: setup in %s: %w", l, l.state, ErrBusy)
	case l.state != StateConfigured && l.state != StateSetupTimeout:
		l.counters.SetupFail++
		return fmt.Errorf("%s: setup in %s: %w", l, l.state, ErrInvalidState)
	}
	settings, err := NewSettings(l.cfg, l.grp)
	if err != nil {
		l.counters.SetupFail++
		log.Errorf("%s: setup - settings failed: %v", l, err)
		return err
	}
	reuse := reuseTiming && l.dataValid
	prev := l.data
	log.Debugf("%s: setup cmd (reuse timing = %t)", l, reuse)
	l.state = StateSetupBusy
	cableLength := l.cfg.CableLengthCm
	l.launch(l.cfg.SetupTimeout, func(opCtx, ctx context.Context) {
		data, err := l.runSetup(ctx, settings, reuse, prev, cableLength)
		l.setupDone(opCtx, ctx, data, err, cb)
	})
	return nil
}

func (l *LLR) runSetup(ctx context.Context, s Settings, reuse bool, prev Data, cableLengthCm uint64) (Data, error) {
	if err := l.hw.Off(); err != nil {
		return Data{}, err
	}
	if err := l.hw.Configure(s); err != nil {
		return Data{}, err
	}
	data := Data{BytesPerNs: s.BytesPerNs}
	if reuse {
		data.Loop = prev.Loop
	} else {
		if err := l.hw.LoopTimingStart(); err != nil {
			return Data{}, err
		}
		samples, err := l.measure(ctx)
		if err != nil {
			return Data{}, err
		}
		data.Loop = NewLoopTime(samples)
		data.Loop.Calculated = CalculatedLoopTime(cableLengthCm)
	}
	data.CapData, data.CapSeq = s.Capacity(data.Loop.Average)
	log.Debugf("%s: capacity set (average = %dns, bytes_per_ns = %d, data = %d, seq = %d)",
		l, data.Loop.Average, s.BytesPerNs, data.CapData, data.CapSeq)
	if err := l.hw.SetCapacity(data.CapData, data.CapSeq); err != nil {
		return Data{}, err
	}
	if reuse {
		if err := l.hw.LoopTimingStart(); err != nil {
			return Data{}, err
		}
	}
	return data, nil
}

// measure collects loop time samples. Zero readings are not counted.
// After loopTimeTries readings it settles for what it has, if anything.
func (l *LLR) measure(ctx context.Context) ([]uint64, error) {
	samples := make([]uint64, 0, LoopTimeSamples)
	for tries := 0; len(samples) < LoopTimeSamples; tries++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if tries >= loopTimeTries && len(samples) > 0 {
			break
		}
		v, err := l.hw.LoopTime()
		if err != nil {
			return nil, err
		}
		log.Debugf("%s: loop time %d = %dns", l, len(samples), v)
		if v == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(l.pollInterval):
			}
			continue
		}
		samples = append(samples, v)
	}
	return samples, nil
}

func (l *LLR) setupDone(opCtx, ctx context.Context, data Data, err error, cb Callback) {
	var (
		state State
		t     notif.Type
		info  interface{}
	)
	switch {
	case opCtx.Err() != nil:
		l.offQuiet()
		state, t = StateConfigured, notif.LLRCanceled
	case err == nil:
		state, t, info = StateSetup, notif.LLRSetup, data
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
		l.offQuiet()
		state, t = StateSetupTimeout, notif.LLRSetupTO
	default:
		l.offQuiet()
		state, t, info = StateConfigured, notif.LLRError, err.Error()
		log.Errorf("%s: setup failed: %v", l, err)
	}

	l.mux.Lock()
	l.state = state
	switch t {
	case notif.LLRSetup:
		l.data = data
		l.dataValid = true
		l.counters.Setup++
	case notif.LLRSetupTO:
		l.counters.SetupTimeout++
		l.setFail(FailSetupTimeout)
	case notif.LLRCanceled:
		l.counters.Canceled++
		l.setFail(FailCanceled)
	default:
		l.counters.SetupFail++
		l.setFail(FailSetupConfig)
	}
	l.finish()
	l.mux.Unlock()

	log.Infof("%s: setup %s", l, state)
	l.notify(t, info)
	if cb != nil {
		cb(state, data)
	}
}

// Start turns LLR on in the background once setup is complete. cb may be nil.
func (l *LLR) Start(cb Callback) error {
	if !l.get() {
		return ErrDeleted
	}
	defer l.put()

	l.mux.Lock()
	defer l.mux.Unlock()
	l.counters.StartCmd++
	switch {
	case l.state == StateRunning:
		log.Debugf("%s: start - already started", l)
		return ErrAlready
	case busy(l.state):
		l.counters.StartFail++
		return fmt.Errorf("%s: start in %s: %w", l, l.state, ErrBusy)
	case l.state != StateSetup && l.state != StateStartTimeout:
		l.counters.StartFail++
		return fmt.Errorf("%s: start in %s: %w", l, l.state, ErrInvalidState)
	}
	log.Debugf("%s: start cmd", l)
	l.state = StateStartBusy
	mode := l.cfg.Mode
	timeout := l.cfg.StartTimeout
	l.launch(timeout, func(opCtx, ctx context.Context) {
		for {
			err := l.runStart(ctx, mode)
			if err == nil || opCtx.Err() != nil || !errors.Is(err, context.DeadlineExceeded) || !l.continuous() {
				l.startDone(opCtx, err, cb)
				return
			}
			l.offQuiet()
			l.mux.Lock()
			l.counters.StartTimeout++
			l.mux.Unlock()
			log.Debugf("%s: start timeout - retrying", l)
			l.notify(notif.LLRStartTO, nil)
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(opCtx, timeout)
			defer tcancel()
		}
	})
	return nil
}

func (l *LLR) continuous() bool {
	l.mux.Lock()
	defer l.mux.Unlock()
	return l.policy.ContinuousStartTries
}

func (l *LLR) runStart(ctx context.Context, mode Mode) error {
	if err := l.hw.Off(); err != nil {
		return err
	}
	if err := l.hw.On(mode); err != nil {
		return err
	}
	for {
		st, err := l.hw.Status()
		if err != nil {
			return err
		}
		switch st {
		case HWAdvance:
			return nil
		case HWHalt:
			return fmt.Errorf("hw state %s: %w", st, errNotAdvancing)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

func (l *LLR) startDone(opCtx context.Context, err error, cb Callback) {
	var (
		state State
		t     notif.Type
		info  interface{}
	)
	switch {
	case opCtx.Err() != nil:
		l.offQuiet()
		if derr := l.hw.Discard(); derr != nil {
			log.Warningf("%s: discard failed: %v", l, derr)
		}
		state, t = StateConfigured, notif.LLRCanceled
	case err == nil:
		state, t = StateRunning, notif.LLRRunning
	case errors.Is(err, context.DeadlineExceeded):
		l.offQuiet()
		state, t = StateStartTimeout, notif.LLRStartTO
	default:
		l.offQuiet()
		state, t, info = StateSetup, notif.LLRError, err.Error()
		log.Errorf("%s: start failed: %v", l, err)
	}

	l.mux.Lock()
	l.state = state
	switch t {
	case notif.LLRRunning:
		l.counters.Running++
	case notif.LLRStartTO:
		l.counters.StartTimeout++
		l.setFail(FailStartTimeout)
	case notif.LLRCanceled:
		l.counters.Canceled++
		l.setFail(FailCanceled)
	default:
		l.counters.StartFail++
		l.setFail(FailStartNotAdvancing)
	}
	data := l.data
	l.finish()
	l.mux.Unlock()

	log.Infof("%s: start %s", l, state)
	l.notify(t, info)
	if cb != nil {
		cb(state, data)
	}
}

func (l *LLR) offQuiet() {
	if err := l.hw.Off(); err != nil {
		log.Warningf("%s: off failed: %v", l, err)
	}
}

// Stop cancels an in-flight setup or start, or turns a set up or running LLR off.
// It returns once the instance is back in StateConfigured.
func (l *LLR) Stop() error {
	if !l.get() {
		return ErrDeleted
	}
	defer l.put()
	l.mux.Lock()
	l.counters.StopCmd++
	l.mux.Unlock()
	return l.stop()
}

func (l *LLR) stop() error {
	l.mux.Lock()
	state := l.state
	log.Debugf("%s: stop (state = %s)", l, state)
	switch state {
	case StateOff, StateConfigured, StateInvalid:
		l.mux.Unlock()
		return nil
	case StateSetupBusy, StateStartBusy:
		l.state = StateCanceling
		l.cancel()
		l.mux.Unlock()
		return l.waitIdle()
	case StateCanceling, StateStopBusy:
		l.mux.Unlock()
		return l.waitIdle()
	}
	// Setup, Running and the timeout states have nothing in flight
	l.state = StateStopBusy
	if state == StateSetup || state == StateRunning {
		l.setFail(FailCommand)
	}
	l.mux.Unlock()

	err := l.hw.Off()
	if state == StateRunning {
		if derr := l.hw.Discard(); err == nil {
			err = derr
		}
	}
	l.mux.Lock()
	l.state = StateConfigured
	l.mux.Unlock()
	if err != nil {
		return fmt.Errorf("%s: stop: %w", l, err)
	}
	log.Infof("%s: stopped", l)
	return nil
}

// waitIdle polls until the instance leaves its busy states
func (l *LLR) waitIdle() error {
	deadline := time.Now().Add(l.stopWait)
	for {
		l.mux.Lock()
		state := l.state
		done := l.opDone
		l.mux.Unlock()
		if !busy(state) {
			return nil
		}
		if time.Now().After(deadline) {
			log.Warningf("%s: stop wait exceeded (state = %s)", l, state)
			return fmt.Errorf("%s: stop wait in %s: %w", l, state, ErrTimeout)
		}
		if done != nil {
			select {
			case <-done:
			case <-time.After(l.pollInterval):
			}
			continue
		}
		time.Sleep(l.pollInterval)
	}
}
