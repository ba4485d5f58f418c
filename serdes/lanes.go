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

package serdes

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/facebook/linkmgr/caps"
	"github.com/facebook/linkmgr/regio"
)

// microcode per lane variables
const (
	varEyeUpper = 0x7
	varEyeLower = 0x8
)

// LaneParams is everything needed to bring lanes of one link up
type LaneParams struct {
	Tech      caps.Tech
	Settings  Settings
	Media     Media
	LinkTrain bool
	Loopback  bool
	// Eye overrides default eye limits when non zero
	Eye EyeLimits
}

// LaneStatus is a snapshot of one asic lane
type LaneStatus struct {
	Tx  LaneState `json:"tx"`
	Rx  LaneState `json:"rx"`
	Eye EyeLimits `json:"eye_limits"`
}

// Lanes drives the serdes lanes of one port
type Lanes struct {
	p      pmi
	a      regio.Access
	core   *Core
	sw     Swizzle
	timing Timing

	mux sync.Mutex
	tx  [MaxAsicLanes]LaneState
	rx  [MaxAsicLanes]LaneState
	eye [MaxAsicLanes]EyeLimits
}

// NewLanes returns a lane controller for the port described by sw
func NewLanes(a regio.Access, core *Core, sw Swizzle, timing Timing) *Lanes {
	return &Lanes{
		p:      core.p,
		a:      a,
		core:   core,
		sw:     sw,
		timing: timing,
	}
}

// Port returns the port the lanes belong to
func (l *Lanes) Port() uint8 {
	return l.sw.Port
}

// Swizzle returns the lane swizzle table
func (l *Lanes) Swizzle() Swizzle {
	return l.sw
}

// SerdesLanes converts an asic lane map (bits 0..3) to serdes lane numbers
func (l *Lanes) SerdesLanes(laneMap uint8) []uint8 {
	ret := []uint8{}
	for i := uint8(0); i < MaxAsicLanes; i++ {
		if laneMap&(1<<i) != 0 {
			ret = append(ret, i+l.sw.offset())
		}
	}
	return ret
}

// Status returns state of an asic lane
func (l *Lanes) Status(asic uint8) LaneStatus {
	l.mux.Lock()
	defer l.mux.Unlock()
	if asic >= MaxAsicLanes {
		return LaneStatus{}
	}
	return LaneStatus{Tx: l.tx[asic], Rx: l.rx[asic], Eye: l.eye[asic]}
}

func (l *Lanes) setState(dir Dir, asic uint8, s LaneState) {
	l.mux.Lock()
	defer l.mux.Unlock()
	if dir == TX {
		l.tx[asic] = s
	} else {
		l.rx[asic] = s
	}
}

func (l *Lanes) asic(dir Dir, s uint8) (uint8, error) {
	if dir == TX {
		return l.sw.TxAsic(s)
	}
	return l.sw.RxAsic(s)
}

func (l *Lanes) cfgField(dir Dir, asic uint8, mask, value uint64) error {
	return regio.WriteField(l.a, regio.BusStatus, CfgAddr(l.sw.Port, dir, asic), mask, value)
}

func (l *Lanes) cfgSeq(dir Dir, asic uint8, fields ...[2]uint64) error {
	for _, f := range fields {
		if err := l.cfgField(dir, asic, f[0], f[1]); err != nil {
			return err
		}
	}
	return nil
}

// TxSetup gates clocks, powers the lane on and leaves the datapath in reset
func (l *Lanes) TxSetup(ctx context.Context, s uint8) error {
	asic, err := l.asic(TX, s)
	if err != nil {
		return err
	}
	l.setState(TX, asic, LaneSetup)
	log.Debugf("serdes lane %d (asic %d): tx setup", s, asic)
	w := l.p.seq(s, 0)
	w.wr(regTxClkDebug, 0, 4, 0x0010)
	w.wr(regTxClkDebug, 0, 3, 0x0008)
	w.wr(regTxClkDebug, 0, 0, 0x0001)
	w.wr(regTxPwrdn, 0, 0, 0x0001)
	if w.err != nil {
		return w.err
	}
	if err := sleep(ctx, l.timing.PowerSettle); err != nil {
		return err
	}
	if err := l.cfgSeq(TX, asic, [2]uint64{cfgHPwrdn, 0}, [2]uint64{cfgTxDisable, 0}); err != nil {
		return err
	}
	w.wr(regTxSdkDisable, 1, 0, 0x0001)
	w.wr(regTxDPEnable, 0, 0, 0x0001)
	if w.err != nil {
		return w.err
	}
	return l.resetPulse(ctx, TX, asic)
}

// RxSetup gates clocks, powers the lane on and leaves the datapath in reset
func (l *Lanes) RxSetup(ctx context.Context, s uint8) error {
	asic, err := l.asic(RX, s)
	if err != nil {
		return err
	}
	l.setState(RX, asic, LaneSetup)
	log.Debugf("serdes lane %d (asic %d): rx setup", s, asic)
	w := l.p.seq(s, 0)
	w.wr(regRxClkDebug, 0, 4, 0x0010)
	w.wr(regRxClkDebug, 0, 3, 0x0008)
	w.wr(regRxClkDebug, 0, 0, 0x0001)
	w.wr(regRxPwrdn, 0, 0, 0x0001)
	if w.err != nil {
		return w.err
	}
	if err := sleep(ctx, l.timing.PowerSettle); err != nil {
		return err
	}
	if err := l.cfgField(RX, asic, cfgHPwrdn, 0); err != nil {
		return err
	}
	w.wr(regRxDPEnable, 0, 0, 0x0001)
	if w.err != nil {
		return w.err
	}
	return l.resetPulse(ctx, RX, asic)
}

// resetPulse holds the datapath reset and toggles the lane reset
func (l *Lanes) resetPulse(ctx context.Context, dir Dir, asic uint8) error {
	if err := l.cfgSeq(dir, asic, [2]uint64{cfgDPHRstb, 0}, [2]uint64{cfgHRstb, 0}); err != nil {
		return err
	}
	if err := sleep(ctx, l.timing.ResetPulse); err != nil {
		return err
	}
	return l.cfgField(dir, asic, cfgHRstb, 1)
}

// TxConfig programs mode, equalization taps, inversion and link training
func (l *Lanes) TxConfig(s uint8, cfg *LaneParams) error {
	asic, err := l.asic(TX, s)
	if err != nil {
		return err
	}
	l.setState(TX, asic, LaneConfig)
	media := cfg.Media
	if cfg.Loopback {
		media = LoopbackMedia()
	}
	log.Debugf("serdes lane %d (asic %d): tx config mode 0x%X taps %+v", s, asic, cfg.Settings.Mode(), media)
	if err := l.cfgField(TX, asic, cfgOSRMode, uint64(cfg.Settings.Mode())); err != nil {
		return err
	}
	w := l.p.seq(s, 0)
	w.wr(regTxPrecoder, 0, 1, 0x0002)
	for i, tap := range []int16{media.Pre3, media.Pre2, media.Pre1, media.Cursor, media.Post1, media.Post2} {
		w.wr(regTxTapBase+uint16(i), uint16(tap), 0, 0x01FF)
	}
	w.wr(regTxTapBase, 1, 12, 0x7000)
	w.wr(regTxTapBase, 1, 11, 0x0800)
	w.wr(regTxInvert, boolBit(l.sw.Lanes[asic].TxInvert), 0, 0x0001)
	w.wr(regLinkTrain, boolBit(cfg.LinkTrain), 1, 0x0002)
	w.wr(regTxRmtLpbk, 0, 0, 0x0001)
	w.wr(regTxMisc, 0, 0, 0x0001)
	w.wr(regTxPattGen, 0, 0, 0x0001)
	w.wr(regTxPIControl, 0, 0, 0x0001)
	w.wr(regTxPIControl, 1, 0, 0x0001)
	return w.err
}

// RxConfig programs mode, firmware lane config, inversion, link training and loopback
func (l *Lanes) RxConfig(s uint8, cfg *LaneParams) error {
	asic, err := l.asic(RX, s)
	if err != nil {
		return err
	}
	l.setState(RX, asic, LaneConfig)
	log.Debugf("serdes lane %d (asic %d): rx config mode 0x%X fw 0x%X", s, asic, cfg.Settings.Mode(), cfg.Settings.RxConfig(cfg.Media.Media))
	if err := l.cfgField(RX, asic, cfgOSRMode, uint64(cfg.Settings.Mode())); err != nil {
		return err
	}
	w := l.p.seq(s, 0)
	w.wr(regRxFwAPI, cfg.Settings.RxConfig(cfg.Media.Media), 0, 0xFFFF)
	w.wr(regRxInvert, boolBit(l.sw.Lanes[asic].RxInvert), 0, 0x0001)
	w.wr(regLinkTrain, boolBit(cfg.LinkTrain), 1, 0x0002)
	w.wr(regRxDigLpbk, boolBit(cfg.Loopback), 0, 0x0001)
	return w.err
}

// TxStart enables the datapath, releases its reset and clears transmit disable
func (l *Lanes) TxStart(s uint8) error {
	asic, err := l.asic(TX, s)
	if err != nil {
		return err
	}
	l.setState(TX, asic, LaneStart)
	w := l.p.seq(s, 0)
	w.wr(regTxDPEnable, 1, 0, 0x0001)
	if w.err != nil {
		return w.err
	}
	if err := l.cfgField(TX, asic, cfgDPHRstb, 1); err != nil {
		return err
	}
	w.wr(regTxSdkDisable, 0, 0, 0x0001)
	return w.err
}

// RxStart enables the datapath and releases its reset
func (l *Lanes) RxStart(s uint8) error {
	asic, err := l.asic(RX, s)
	if err != nil {
		return err
	}
	l.setState(RX, asic, LaneStart)
	if err := l.p.write(s, regRxDPEnable, 1, 0, 0x0001); err != nil {
		return err
	}
	return l.cfgField(RX, asic, cfgDPHRstb, 1)
}

// ClockAlign reconfigures the TX phase interpolator chain. No polling.
func (l *Lanes) ClockAlign(s uint8) error {
	log.Debugf("serdes lane %d: clock align", s)
	w := l.p.seq(s, 0)
	w.wr(regClkAlignTop, 0, 7, 0x0080)
	w.wr(regClkAlignCtl, 0, 11, 0x0800)
	w.wr(regClkAlignCtl, 0, 10, 0x0400)
	w.wr(regClkAlignCtl, 0, 4, 0x0010)
	w.wr(regClkAlignCtl, 0, 3, 0x0008)
	w.wr(regClkAlignPhase, 0, 0, 0x0001)
	w.wr(regClkAlignPhase, 0, 1, 0x0002)
	w.wr(regClkAlignPhase, 0, 2, 0x0004)
	w.wr(regClkAlignPhase, 0, 12, 0x7000)
	w.wr(regClkAlignCtl, 0, 11, 0x0800)
	return w.err
}

func (l *Lanes) statusCheck(ctx context.Context, asic uint8, tries int, interval time.Duration, bits uint64) error {
	var status uint64
	err := poll(ctx, tries, interval, func() (bool, error) {
		v, err := l.a.Read(regio.BusStatus, StsAddr(l.sw.Port, asic))
		status = v
		return v&bits == bits, err
	})
	if err == ErrTimeout {
		return fmt.Errorf("status 0x%X: %w", status, ErrTimeout)
	}
	return err
}

// TxCheck polls for TX data valid and clock valid
func (l *Lanes) TxCheck(ctx context.Context, s uint8) error {
	asic, err := l.asic(TX, s)
	if err != nil {
		return err
	}
	l.setState(TX, asic, LaneCheck)
	return l.statusCheck(ctx, asic, l.timing.TxCheckTries, l.timing.TxCheckInterval, StatusTxReady)
}

// RxCheck polls for RX data valid, clock valid and lock
func (l *Lanes) RxCheck(ctx context.Context, s uint8, enc Encoding) error {
	asic, err := l.asic(RX, s)
	if err != nil {
		return err
	}
	l.setState(RX, asic, LaneCheck)
	return l.statusCheck(ctx, asic, l.timing.rxCheckTries(enc), l.timing.RxCheckInterval, StatusRxReady)
}

// eyeLimits picks limits for the quality check, widened when link training chose extended reach
func (l *Lanes) eyeLimits(s uint8, cfg *LaneParams) (EyeLimits, error) {
	limits := DefaultEyeLimits(cfg.Tech)
	if cfg.Eye != (EyeLimits{}) {
		limits = cfg.Eye
	}
	if !cfg.LinkTrain || !cfg.Settings.Encoding.PAM4() {
		return limits, nil
	}
	extended, err := l.p.read(s, regExtendedReach, 0, 15)
	if err != nil {
		return limits, err
	}
	if extended != 0 {
		log.Debugf("serdes lane %d: extended reach", s)
		limits = extendedEyeLimits(cfg.Tech)
	}
	return limits, nil
}

// Eye reads the eye opening metric of a serdes lane
func (l *Lanes) Eye(s uint8) (upper, lower uint8, err error) {
	info, ok := l.core.FwInfo()
	if !ok {
		return 0, 0, fmt.Errorf("firmware info not available: %w", ErrConfig)
	}
	if upper, err = l.p.ucRAMRead8(s, info.LaneVarAddr(s, varEyeUpper)); err != nil {
		return 0, 0, err
	}
	lower, err = l.p.ucRAMRead8(s, info.LaneVarAddr(s, varEyeLower))
	return upper, lower, err
}

// QualityCheck polls both eye halves until each is strictly within limits
func (l *Lanes) QualityCheck(ctx context.Context, s uint8, cfg *LaneParams) error {
	asic, err := l.asic(RX, s)
	if err != nil {
		return err
	}
	info, ok := l.core.FwInfo()
	if !ok {
		return fmt.Errorf("firmware info not available: %w", ErrConfig)
	}
	limits, err := l.eyeLimits(s, cfg)
	if err != nil {
		return err
	}
	l.mux.Lock()
	l.eye[asic] = limits
	l.mux.Unlock()
	for _, v := range []uint32{varEyeUpper, varEyeLower} {
		var eye uint8
		err := poll(ctx, l.timing.QualityCheckTries, l.timing.QualityCheckInterval, func() (bool, error) {
			e, err := l.p.ucRAMRead8(s, info.LaneVarAddr(s, v))
			eye = e
			log.Debugf("serdes lane %d (asic %d): eye 0x%X = %d, limits %d..%d", s, asic, v, e, limits.Low, limits.High)
			return limits.Within(e), err
		})
		if err == ErrTimeout {
			return fmt.Errorf("eye %d outside %d..%d: %w", eye, limits.Low, limits.High, ErrTimeout)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// TxStop disables transmit and powers the lane down
func (l *Lanes) TxStop(ctx context.Context, s uint8) error {
	asic, err := l.asic(TX, s)
	if err != nil {
		return err
	}
	l.setState(TX, asic, LaneStop)
	w := l.p.seq(s, 0)
	w.wr(regTxSdkDisable, 1, 0, 0x0001)
	w.wr(regTxDPEnable, 0, 0, 0x0001)
	if w.err != nil {
		return w.err
	}
	if err := l.cfgField(TX, asic, cfgDPHRstb, 0); err != nil {
		return err
	}
	w.wr(regTxPwrdn, 1, 0, 0x0001)
	if w.err != nil {
		return w.err
	}
	if err := sleep(ctx, l.timing.PowerSettle); err != nil {
		return err
	}
	l.setState(TX, asic, LaneDown)
	return nil
}

// RxStop disables the datapath, powers the lane down and clears its firmware config
func (l *Lanes) RxStop(ctx context.Context, s uint8) error {
	asic, err := l.asic(RX, s)
	if err != nil {
		return err
	}
	l.setState(RX, asic, LaneStop)
	if err := l.p.write(s, regRxDPEnable, 0, 0, 0x0001); err != nil {
		return err
	}
	if err := l.cfgField(RX, asic, cfgDPHRstb, 0); err != nil {
		return err
	}
	if err := l.p.write(s, regRxPwrdn, 1, 0, 0x0001); err != nil {
		return err
	}
	if err := sleep(ctx, l.timing.PowerSettle); err != nil {
		return err
	}
	if err := l.p.write(s, regRxFwAPI, 0, 0, 0xFFFF); err != nil {
		return err
	}
	l.setState(RX, asic, LaneDown)
	return nil
}

// Start runs setup, config and start on every lane of the asic lane map, then aligns clocks
func (l *Lanes) Start(ctx context.Context, laneMap uint8, cfg *LaneParams) error {
	lanes := l.SerdesLanes(laneMap)
	log.Debugf("serdes port %d: lanes start (lane map 0x%X)", l.sw.Port, laneMap)
	for _, s := range lanes {
		if err := l.RxSetup(ctx, s); err != nil {
			return stageErr(s, RX, StageSetup, err)
		}
		if err := l.TxSetup(ctx, s); err != nil {
			return stageErr(s, TX, StageSetup, err)
		}
		if err := l.RxConfig(s, cfg); err != nil {
			return stageErr(s, RX, StageConfig, err)
		}
		if err := l.TxConfig(s, cfg); err != nil {
			return stageErr(s, TX, StageConfig, err)
		}
		if err := l.RxStart(s); err != nil {
			return stageErr(s, RX, StageStart, err)
		}
		if err := l.TxStart(s); err != nil {
			return stageErr(s, TX, StageStart, err)
		}
	}
	for _, s := range lanes {
		if err := l.ClockAlign(s); err != nil {
			return stageErr(s, TX, StageClockAlign, err)
		}
	}
	return nil
}

// Check runs signal checks on every lane and, unless in loopback, the quality check
func (l *Lanes) Check(ctx context.Context, laneMap uint8, cfg *LaneParams) error {
	lanes := l.SerdesLanes(laneMap)
	for _, s := range lanes {
		if err := l.TxCheck(ctx, s); err != nil {
			return stageErr(s, TX, StageCheck, err)
		}
		if err := l.RxCheck(ctx, s, cfg.Settings.Encoding); err != nil {
			return stageErr(s, RX, StageCheck, err)
		}
	}
	if cfg.Loopback {
		return nil
	}
	for _, s := range lanes {
		if err := l.QualityCheck(ctx, s, cfg); err != nil {
			return stageErr(s, RX, StageQualityCheck, err)
		}
	}
	return nil
}

// MarkUp moves every lane of the map to Up
func (l *Lanes) MarkUp(laneMap uint8) {
	for _, s := range l.SerdesLanes(laneMap) {
		if asic, err := l.sw.TxAsic(s); err == nil {
			l.setState(TX, asic, LaneUp)
		}
		if asic, err := l.sw.RxAsic(s); err == nil {
			l.setState(RX, asic, LaneUp)
		}
	}
}

// Up is Start, optionally Check, then MarkUp
func (l *Lanes) Up(ctx context.Context, laneMap uint8, cfg *LaneParams, check bool) error {
	if err := l.Start(ctx, laneMap, cfg); err != nil {
		return err
	}
	if check {
		if err := l.Check(ctx, laneMap, cfg); err != nil {
			return err
		}
	}
	l.MarkUp(laneMap)
	return nil
}

// Down stops TX then RX of every lane. All lanes are attempted, the first error is returned.
func (l *Lanes) Down(ctx context.Context, laneMap uint8) error {
	var first error
	log.Debugf("serdes port %d: lanes down (lane map 0x%X)", l.sw.Port, laneMap)
	for _, s := range l.SerdesLanes(laneMap) {
		if err := l.TxStop(ctx, s); err != nil && first == nil {
			first = stageErr(s, TX, StageStop, err)
		}
		if err := l.RxStop(ctx, s); err != nil && first == nil {
			first = stageErr(s, RX, StageStop, err)
		}
	}
	return first
}

// TxTaps reads back transmit equalization of a serdes lane
func (l *Lanes) TxTaps(s uint8) (Media, error) {
	var m Media
	taps := []*int16{&m.Pre3, &m.Pre2, &m.Pre1, &m.Cursor, &m.Post1, &m.Post2}
	for i, t := range taps {
		// 9 bit two's complement
		v, err := l.p.readSigned(s, regTxTapBase+uint16(i), 7, 7)
		if err != nil {
			return m, err
		}
		*t = v
	}
	return m, nil
}

func boolBit(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}
