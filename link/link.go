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
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/facebook/linkmgr/caps"
	"github.com/facebook/linkmgr/fec"
	"github.com/facebook/linkmgr/llr"
	"github.com/facebook/linkmgr/notif"
	"github.com/facebook/linkmgr/regio"
	"github.com/facebook/linkmgr/serdes"
)

// ResetWait bounds how long Reset waits for a down sequence to complete
const ResetWait = 2 * time.Second

var (
	errNoCable      = errors.New("no cable present")
	errUnsupported  = errors.New("unsupported cable")
	errNoMatch      = errors.New("no common technology with link partner")
	errPCSNotOK     = errors.New("pcs not locked and aligned")
	errFECUpCheck   = errors.New("fec up check failed")
	errAttemptTimer = errors.New("up attempt timed out")
)

// Notifier queues notifications of a link group
type Notifier interface {
	Enqueue(link uint8, t notif.Type, info interface{}, infoMap uint64) error
}

// Hardware groups the collaborators of one link. Autoneg and LLR are optional.
type Hardware struct {
	Core    Core
	Lanes   Lanes
	PCS     PCS
	Media   Media
	Autoneg Autoneg
	LLR     *llr.LLR
}

// UpInfo is the payload of a link-up notification
type UpInfo struct {
	Tech        caps.Tech `json:"tech"`
	FEC         caps.FEC  `json:"fec"`
	SpeedGbps   uint32    `json:"speed_gbps"`
	LinkPartner caps.Caps `json:"link_partner"`
	Tries       int       `json:"tries"`
}

// UpFailInfo is the payload of a link-up-fail notification
type UpFailInfo struct {
	Cause DownCause `json:"cause"`
	Tries int       `json:"tries"`
	Error string    `json:"error,omitempty"`
}

// DownInfo is the payload of link-down and link-async-down notifications
type DownInfo struct {
	Cause DownCause `json:"cause"`
}

// Counters of link commands and outcomes
type Counters struct {
	Up          uint64               `json:"up"`
	UpFail      uint64               `json:"up_fail"`
	UpRetry     uint64               `json:"up_retry"`
	UpCanceled  uint64               `json:"up_canceled"`
	Down        uint64               `json:"down"`
	AsyncDown   uint64               `json:"async_down"`
	Fault       uint64               `json:"fault"`
	UCWWarn     uint64               `json:"ucw_warn"`
	CCWWarn     uint64               `json:"ccw_warn"`
	Reset       uint64               `json:"reset"`
	AsyncCauses map[DownCause]uint64 `json:"async_causes"`
}

// Clocks track how long bring up takes
type Clocks struct {
	UpStart      time.Time     `json:"up_start"`
	AttemptStart time.Time     `json:"attempt_start"`
	Attempts     int           `json:"attempts"`
	LastAttempt  time.Duration `json:"last_attempt"`
	TimeToUp     time.Duration `json:"time_to_up"`
	UpTime       time.Time     `json:"up_time"`
}

// ID identifies a link
type ID struct {
	Dev   uint8 `json:"dev"`
	Group uint8 `json:"group"`
	Num   uint8 `json:"link"`
}

func (id ID) String() string {
	return fmt.Sprintf("%d/%d/%d", id.Dev, id.Group, id.Num)
}

// ParseID parses d/g/n, also accepting _ as separator
func ParseID(s string) (ID, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '_' })
	if len(parts) != 3 {
		return ID{}, fmt.Errorf("link id %q must be dev/group/num", s)
	}
	var v [3]uint8
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return ID{}, fmt.Errorf("link id %q: %w", s, err)
		}
		v[i] = uint8(n)
	}
	return ID{Dev: v[0], Group: v[1], Num: v[2]}, nil
}

// Link is the bring up and tear down state machine of one link
type Link struct {
	id      ID
	laneMap uint8
	hw      Hardware
	ntf     Notifier
	fecMon  *fec.Monitor
	now     func() time.Time

	mux         sync.Mutex
	state       State
	configuring bool
	cfg         Config
	policy      Policy
	cancel      context.CancelFunc
	upDone      chan struct{}
	downDone    chan struct{}
	tries       int
	upFailCause DownCause
	upFailTime  time.Time
	downCause   DownCause
	downTime    time.Time
	infoMap     InfoMap
	counters    Counters
	clocks      Clocks
	tech        caps.Tech
	fecMode     caps.FEC
	lpCaps      caps.Caps
	lastErr     string
}

// New returns a Down link using the asic lanes of laneMap
func New(id ID, laneMap uint8, hw Hardware, ntf Notifier) *Link {
	l := &Link{
		id:       id,
		laneMap:  laneMap,
		hw:       hw,
		ntf:      ntf,
		now:      time.Now,
		state:    StateDown,
		cfg:      DefaultConfig(),
		policy:   DefaultPolicy(),
		downDone: make(chan struct{}),
		counters: Counters{AsyncCauses: map[DownCause]uint64{}},
	}
	close(l.downDone)
	l.fecMon = fec.NewMonitor(hw.PCS, l.fecEvent)
	return l
}

func (l *Link) String() string {
	return "link " + l.id.String()
}

// ID returns link identity
func (l *Link) ID() ID {
	return l.id
}

// LaneMap returns the asic lanes of the link
func (l *Link) LaneMap() uint8 {
	return l.laneMap
}

// State returns current link state
func (l *Link) State() State {
	l.mux.Lock()
	defer l.mux.Unlock()
	return l.state
}

// notify must be called with mux held so notifications keep state order
func (l *Link) notify(t notif.Type, info interface{}) {
	if l.ntf == nil {
		return
	}
	if err := l.ntf.Enqueue(l.id.Num, t, info, uint64(l.infoMap)); err != nil {
		log.Warningf("%s: notify %s failed: %v", l, t, err)
	}
}

// ConfigSet replaces link config. The link must be down.
func (l *Link) ConfigSet(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	l.mux.Lock()
	defer l.mux.Unlock()
	if l.configuring {
		return fmt.Errorf("%s: config set: %w", l, ErrBusy)
	}
	if l.state != StateDown {
		return fmt.Errorf("%s: config set in %s: %w", l, l.state, ErrInvalidState)
	}
	l.cfg = cfg
	log.Debugf("%s: config set (tech = %s, fec = %s, options = %s)", l, cfg.Caps.Tech, cfg.Caps.FEC, cfg.Options)
	return nil
}

// Config returns link config
func (l *Link) Config() Config {
	l.mux.Lock()
	defer l.mux.Unlock()
	return l.cfg
}

// PolicySet replaces link policy. FEC limits of an up link take effect immediately.
func (l *Link) PolicySet(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	l.mux.Lock()
	defer l.mux.Unlock()
	if l.configuring {
		return fmt.Errorf("%s: policy set: %w", l, ErrBusy)
	}
	if l.state == StateUp {
		limits, err := p.FEC.Resolve(l.tech)
		if err != nil {
			return fmt.Errorf("%s: fec policy: %v: %w", l, err, ErrConfig)
		}
		l.fecMon.SetLimits(limits, p.FEC.DownChances)
	}
	l.policy = p
	return nil
}

// Policy returns link policy
func (l *Link) Policy() Policy {
	l.mux.Lock()
	defer l.mux.Unlock()
	return l.policy
}

// Up starts bringing the link up in the background.
// It is a no-op while starting or up.
func (l *Link) Up() error {
	l.mux.Lock()
	defer l.mux.Unlock()
	if l.configuring {
		return fmt.Errorf("%s: up: %w", l, ErrBusy)
	}
	switch l.state {
	case StateStarting, StateUp:
		log.Debugf("%s: up - already %s", l, l.state)
		return nil
	case StateDown:
	default:
		return fmt.Errorf("%s: up in %s: %w", l, l.state, ErrBusy)
	}
	log.Infof("%s: up (lane map 0x%X)", l, l.laneMap)
	now := l.now()
	l.state = StateStarting
	l.tries = 0
	l.infoMap = 0
	l.downDone = make(chan struct{})
	l.clocks = Clocks{UpStart: now, AttemptStart: now}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	done := make(chan struct{})
	l.upDone = done
	go l.upWorker(ctx, done)
	return nil
}

// upWorker runs attempts until the link is up, fails terminally or is canceled
func (l *Link) upWorker(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		l.mux.Lock()
		cfg, pol := l.cfg, l.policy
		l.mux.Unlock()

		res := l.attempt(ctx, cfg, pol)
		if ctx.Err() != nil {
			l.mux.Lock()
			l.counters.UpCanceled++
			l.mux.Unlock()
			log.Debugf("%s: up canceled", l)
			return
		}
		if res.err == nil {
			l.upDoneOK(ctx, cfg, pol, res)
			return
		}
		if !l.upFailed(cfg, pol, res) {
			return
		}
		l.mux.Lock()
		wait := cfg.backoff(l.tries)
		l.mux.Unlock()
		if err := sleep(ctx, wait); err != nil {
			l.mux.Lock()
			l.counters.UpCanceled++
			l.mux.Unlock()
			return
		}
		l.mux.Lock()
		l.clocks.AttemptStart = l.now()
		l.mux.Unlock()
	}
}

// upDoneOK arms FEC monitoring and moves the link to Up
func (l *Link) upDoneOK(ctx context.Context, cfg Config, pol Policy, res result) {
	limits, err := pol.FEC.Resolve(res.tech)
	if err != nil {
		log.Warningf("%s: fec policy: %v, monitor disabled", l, err)
		limits = fec.Limits{}
	}
	l.fecMon.CacheUp()
	l.fecMon.ClearWarn()
	l.fecMon.Start(limits, pol.FEC.DownChances)

	l.mux.Lock()
	if ctx.Err() != nil || l.state != StateStarting {
		l.mux.Unlock()
		return
	}
	now := l.now()
	l.tries++
	l.state = StateUp
	l.tech, l.fecMode, l.lpCaps = res.tech, res.fecMode, res.lp
	l.infoMap |= res.info | InfoLinkUp
	l.upFailCause = CauseNone
	l.upFailTime = time.Time{}
	l.lastErr = ""
	l.counters.Up++
	l.clocks.Attempts = l.tries
	l.clocks.LastAttempt = now.Sub(l.clocks.AttemptStart)
	l.clocks.TimeToUp = now.Sub(l.clocks.UpStart)
	l.clocks.UpTime = now
	log.Infof("%s: up (tech = %s, fec = %s, tries = %d, time to up = %v)",
		l, res.tech, res.fecMode, l.tries, l.clocks.TimeToUp)
	l.notify(notif.LinkUp, UpInfo{
		Tech:        res.tech,
		FEC:         res.fecMode,
		SpeedGbps:   res.tech.SpeedGbps(),
		LinkPartner: res.lp,
		Tries:       l.tries,
	})
	startLLR := l.hw.LLR != nil && cfg.Caps.HPE.Has(caps.HPELLR) && (res.lp.HPE.Has(caps.HPELLR) || !cfg.Options.Has(OptAutoneg))
	l.mux.Unlock()

	if startLLR {
		l.llrSetup(res.tech)
	}
}

// upFailed records a failed attempt. It returns true when another attempt should follow.
func (l *Link) upFailed(cfg Config, pol Policy, res result) bool {
	l.mux.Lock()
	if l.state != StateStarting {
		l.mux.Unlock()
		return false
	}
	now := l.now()
	l.tries++
	l.infoMap |= res.info
	l.clocks.Attempts = l.tries
	l.clocks.LastAttempt = now.Sub(l.clocks.AttemptStart)
	cause := res.cause
	ioErr := errors.Is(res.err, regio.ErrIO)
	terminal := cause.Fatal() || ioErr
	if !terminal && cfg.MaxUpTries != InfiniteUpTries && l.tries >= cfg.MaxUpTries {
		cause |= CauseUpTries
		terminal = true
	}
	if !terminal {
		l.counters.UpRetry++
		log.Warningf("%s: up attempt %d failed (cause = %s): %v", l, l.tries, cause, res.err)
		l.mux.Unlock()
		return true
	}
	l.mux.Unlock()

	log.Errorf("%s: up failed after %d tries (cause = %s): %v", l, l.tries, cause, res.err)
	l.hwDown(pol, false)

	l.mux.Lock()
	defer l.mux.Unlock()
	if l.state != StateStarting {
		return false
	}
	l.state = StateDown
	l.upFailCause = cause
	l.upFailTime = now
	l.lastErr = res.err.Error()
	l.counters.UpFail++
	l.clocks.UpStart = time.Time{}
	l.clocks.AttemptStart = time.Time{}
	close(l.downDone)
	if ioErr {
		l.notify(notif.LinkError, UpFailInfo{Cause: cause, Tries: l.tries, Error: l.lastErr})
	}
	l.notify(notif.LinkUpFail, UpFailInfo{Cause: cause, Tries: l.tries, Error: l.lastErr})
	return false
}

// result of one up attempt
type result struct {
	cause   DownCause
	info    InfoMap
	err     error
	tech    caps.Tech
	fecMode caps.FEC
	lp      caps.Caps
}

// attempt runs the hardware up sequence once
func (l *Link) attempt(parent context.Context, cfg Config, pol Policy) result {
	ctx := parent
	if cfg.UpTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, cfg.UpTimeout)
		defer cancel()
	}
	res := l.sequence(ctx, cfg, pol)
	if res.err != nil && parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.cause = res.cause&^CauseCanceled | CauseTimeout
		res.info |= InfoLinkUpTimeout
		res.err = fmt.Errorf("%w: %v", errAttemptTimer, res.err)
	}
	return res
}

// sequence is cable check, autoneg, core, lanes, PCS, MAC and the FEC up check
func (l *Link) sequence(ctx context.Context, cfg Config, pol Policy) result {
	res := result{tech: cfg.Caps.Tech.Best(), fecMode: cfg.Caps.FEC}
	fail := func(c DownCause, err error) result {
		res.cause |= c
		res.err = err
		return res
	}
	loopback := cfg.Options.Has(OptSerdesLoopback)
	autoneg := cfg.Options.Has(OptAutoneg) && l.hw.Autoneg != nil

	var cable Cable
	if !loopback {
		var err error
		cable, err = l.hw.Media.Cable()
		if err != nil {
			return fail(classify(err), fmt.Errorf("media: %w", err))
		}
		if !cable.Present {
			return fail(CauseConfig, errNoCable)
		}
		if !cable.Supported {
			if !pol.UseUnsupportedCable {
				return fail(CauseUnsupportedCable, errUnsupported)
			}
			log.Warningf("%s: using unsupported cable", l)
		}
	}

	if autoneg {
		lp, err := l.hw.Autoneg.Negotiate(ctx, cfg.Caps)
		if err != nil {
			if ctx.Err() != nil {
				return fail(classify(err), err)
			}
			res.info |= InfoANError
			l.mux.Lock()
			l.notify(notif.ANError, err.Error())
			l.mux.Unlock()
			return fail(CauseAutonegFail, fmt.Errorf("autoneg: %w", err))
		}
		res.lp = lp
		res.info |= InfoANDone
		l.mux.Lock()
		l.notify(notif.ANData, lp)
		l.mux.Unlock()
		common := cfg.Caps.Tech & lp.Tech
		if common == 0 {
			return fail(CauseAutonegNoMatch, errNoMatch)
		}
		res.tech = common.Best()
		res.fecMode = cfg.Caps.FEC & lp.FEC
	}

	extended := cable.ExtendedReach || cfg.Options.Has(OptExtendedReachForce)
	params := serdes.LaneParams{
		Tech:      res.tech,
		Settings:  serdes.SettingsFor(res.tech, extended, false),
		Media:     cable.Media,
		LinkTrain: cfg.Caps.HPE.Has(caps.HPELinkTrain),
		Loopback:  loopback,
		Eye:       cfg.Eye,
	}
	if loopback {
		params.Media = serdes.LoopbackMedia()
	}

	sw := l.hw.Lanes.Swizzle()
	if err := l.hw.Core.Start(ctx, params.Settings.Clocking, &sw); err != nil {
		return fail(classify(err), fmt.Errorf("core: %w", err))
	}
	if err := l.hw.Lanes.Start(ctx, l.laneMap, &params); err != nil {
		return fail(classify(err), err)
	}
	if !autoneg {
		if err := l.hw.PCS.Start(res.tech, res.fecMode); err != nil {
			return fail(classify(err), fmt.Errorf("pcs start: %w", err))
		}
		if err := l.hw.PCS.EnableTx(l.laneMap); err != nil {
			return fail(classify(err), fmt.Errorf("pmd tx enable: %w", err))
		}
		if err := l.hw.Lanes.Check(ctx, l.laneMap, &params); err != nil {
			if errors.Is(err, serdes.ErrQuality) {
				res.info |= InfoSerdesBadEyes
			}
			return fail(classify(err), err)
		}
	}
	res.info |= InfoSerdesOK
	l.hw.Lanes.MarkUp(l.laneMap)

	if err := l.hw.PCS.MACStart(); err != nil {
		return fail(classify(err), fmt.Errorf("mac start: %w", err))
	}
	res.info |= InfoMACOK
	ok, err := l.hw.PCS.OK()
	if err != nil {
		return fail(classify(err), fmt.Errorf("pcs status: %w", err))
	}
	if !ok {
		return fail(CauseAlign, errPCSNotOK)
	}
	res.info |= InfoPCSOK

	c, info, err := l.fecUpCheck(ctx, cfg, res.tech)
	res.info |= info
	if err != nil {
		return fail(c, err)
	}
	return res
}

// fecUpCheck measures codeword errors over FECUpCheckWait after FECUpSettleWait.
// UCW is checked before CCW.
func (l *Link) fecUpCheck(ctx context.Context, cfg Config, tech caps.Tech) (DownCause, InfoMap, error) {
	ucw, ccw := cfg.fecUpLimits(tech)
	if ucw == 0 && ccw == 0 {
		return CauseNone, 0, nil
	}
	info := InfoFECCheck
	if err := sleep(ctx, cfg.FECUpSettleWait); err != nil {
		return classify(err), info, err
	}
	l.fecMon.Reset()
	if _, _, err := l.fecMon.Sample(); err != nil {
		return classify(err), info, fmt.Errorf("fec baseline: %w", err)
	}
	if err := sleep(ctx, cfg.FECUpCheckWait); err != nil {
		return classify(err), info, err
	}
	fi, _, err := l.fecMon.Sample()
	if err != nil {
		return classify(err), info, fmt.Errorf("fec sample: %w", err)
	}
	log.Debugf("%s: fec up check (ucw = %d, ccw = %d, period = %dms, limits = %d/%d)",
		l, fi.UCW, fi.CCW, fi.PeriodMs, ucw, ccw)
	if fi.UCWExceeds(ucw) {
		return CauseUCW, info | InfoFECUCWHigh, fmt.Errorf("ucw %d in %dms: %w", fi.UCW, fi.PeriodMs, errFECUpCheck)
	}
	if fi.CCWExceeds(ccw) {
		return CauseCCW, info | InfoFECCCWHigh, fmt.Errorf("ccw %d in %dms: %w", fi.CCW, fi.PeriodMs, errFECUpCheck)
	}
	return CauseNone, info | InfoFECOK, nil
}

// classify maps an up sequence error to down causes
func classify(err error) DownCause {
	switch {
	case err == nil:
		return CauseNone
	case errors.Is(err, serdes.ErrCanceled), errors.Is(err, context.Canceled):
		return CauseCanceled
	case errors.Is(err, serdes.ErrQuality):
		return CauseSerdes | CauseSerdesQuality | CauseBadEye
	case errors.Is(err, serdes.ErrSignal):
		return CauseSerdes | CauseSerdesSignal
	case errors.Is(err, serdes.ErrFirmware):
		// a bad image stays bad on retry
		return CauseSerdes | CauseConfig
	case errors.Is(err, serdes.ErrConfig):
		return CauseSerdes | CauseSerdesConfig
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, serdes.ErrTimeout):
		return CauseSerdes | CauseTimeout
	case errors.Is(err, regio.ErrIO):
		return CauseSerdes
	}
	return CauseSerdesConfig
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// furcation derives the port group split from the lane count of the link
func (l *Link) furcation() caps.Furcation {
	switch bits.OnesCount8(l.laneMap) {
	case 1:
		return caps.FurcationX4
	case 2:
		return caps.FurcationX2
	}
	return caps.FurcationX1
}

// llrSetup measures loop time and starts LLR once setup is done
func (l *Link) llrSetup(tech caps.Tech) {
	l.hw.LLR.GroupSet(llr.Group{Tech: tech, Furcation: l.furcation()})
	err := l.hw.LLR.Setup(func(state llr.State, data llr.Data) {
		if state != llr.StateSetup {
			log.Warningf("%s: llr setup ended in %s", l, state)
			return
		}
		if l.State() != StateUp {
			return
		}
		if err := l.hw.LLR.Start(nil); err != nil {
			log.Errorf("%s: llr start: %v", l, err)
		}
	}, true)
	if err != nil && !errors.Is(err, llr.ErrAlready) {
		log.Errorf("%s: llr setup: %v", l, err)
	}
}

// hwDown tears down everything the up sequence started. Errors are logged.
func (l *Link) hwDown(pol Policy, wasUp bool) {
	l.fecMon.Stop()
	if wasUp {
		l.fecMon.CacheDown()
	}
	l.fecMon.ClearWarn()
	if l.hw.LLR != nil {
		if err := l.hw.LLR.Stop(); err != nil && !errors.Is(err, llr.ErrDeleted) {
			log.Warningf("%s: llr stop: %v", l, err)
		}
	}
	if l.hw.Autoneg != nil {
		if err := l.hw.Autoneg.Stop(); err != nil {
			log.Warningf("%s: autoneg stop: %v", l, err)
		}
	}
	if err := l.hw.PCS.Stop(); err != nil {
		log.Errorf("%s: pcs stop: %v", l, err)
	}
	if pol.KeepSerdesUp {
		return
	}
	if err := l.hw.Lanes.Down(context.Background(), l.laneMap); err != nil {
		log.Errorf("%s: lanes down: %v", l, err)
	}
}

// Down takes the link down on a client command
func (l *Link) Down() error {
	return l.down(CauseCommand, false)
}

// AsyncDown takes the link down on an internal event such as a fault or FEC limit
func (l *Link) AsyncDown(cause DownCause) error {
	l.mux.Lock()
	if l.state == StateDown || l.state == StateStopping {
		l.mux.Unlock()
		return nil
	}
	l.counters.AsyncCauses[cause]++
	l.mux.Unlock()
	return l.down(cause, true)
}

func (l *Link) down(cause DownCause, async bool) error {
	l.mux.Lock()
	if l.configuring {
		l.mux.Unlock()
		return fmt.Errorf("%s: down: %w", l, ErrBusy)
	}
	switch l.state {
	case StateDown, StateStopping:
		l.mux.Unlock()
		return nil
	case StateInvalid:
		l.mux.Unlock()
		return fmt.Errorf("%s: down: %w", l, ErrInvalidState)
	}
	log.Infof("%s: down (cause = %s, from %s)", l, cause, l.state)
	wasUp := l.state == StateUp
	l.state = StateStopping
	l.configuring = true
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	upDone := l.upDone
	pol := l.policy
	l.mux.Unlock()

	if upDone != nil {
		<-upDone
	}
	l.hwDown(pol, wasUp)

	l.mux.Lock()
	defer l.mux.Unlock()
	l.configuring = false
	l.state = StateDown
	l.upDone = nil
	l.downCause = cause
	l.downTime = l.now()
	l.infoMap &^= InfoLinkUp
	l.clocks.UpStart = time.Time{}
	l.clocks.AttemptStart = time.Time{}
	close(l.downDone)
	if async {
		l.counters.AsyncDown++
		l.notify(notif.LinkAsyncDown, DownInfo{Cause: cause})
	} else {
		l.counters.Down++
		l.notify(notif.LinkDown, DownInfo{Cause: cause})
	}
	return nil
}

// WaitDown blocks until the link is down or timeout passes
func (l *Link) WaitDown(timeout time.Duration) error {
	l.mux.Lock()
	done := l.downDone
	l.mux.Unlock()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		return fmt.Errorf("%s: waiting for down: %w", l, ErrTimeout)
	}
}

// Reset takes the link down from any state and resets PCS, lanes and LLR
func (l *Link) Reset() error {
	l.mux.Lock()
	if l.configuring {
		l.mux.Unlock()
		return fmt.Errorf("%s: reset: %w", l, ErrBusy)
	}
	state := l.state
	l.mux.Unlock()

	if state == StateStarting || state == StateUp {
		if err := l.down(CauseCommand, false); err != nil {
			return err
		}
	}
	if err := l.WaitDown(ResetWait); err != nil {
		return err
	}

	l.mux.Lock()
	if l.configuring || l.state != StateDown {
		l.mux.Unlock()
		return fmt.Errorf("%s: reset: %w", l, ErrBusy)
	}
	l.configuring = true
	l.mux.Unlock()
	defer func() {
		l.mux.Lock()
		l.configuring = false
		l.mux.Unlock()
	}()

	log.Infof("%s: reset", l)
	if l.hw.LLR != nil {
		if err := l.hw.LLR.Stop(); err != nil && !errors.Is(err, llr.ErrDeleted) {
			log.Warningf("%s: llr stop: %v", l, err)
		}
		l.hw.LLR.ClearData()
	}
	if err := l.hw.PCS.Reset(); err != nil {
		return fmt.Errorf("%s: pcs reset: %w", l, err)
	}
	if err := l.hw.Lanes.Down(context.Background(), l.laneMap); err != nil {
		return fmt.Errorf("%s: lanes reset: %w", l, err)
	}
	l.fecMon.Reset()

	l.mux.Lock()
	l.counters.Reset++
	l.infoMap = 0
	l.mux.Unlock()
	return nil
}

// fecEvent runs on the FEC monitor goroutine
func (l *Link) fecEvent(ev fec.Event, info fec.Info) {
	switch ev {
	case fec.EventUCWDown:
		go l.asyncDownLogged(CauseUCW)
	case fec.EventCCWDown:
		go l.asyncDownLogged(CauseCCW)
	case fec.EventUCWWarn:
		l.mux.Lock()
		l.counters.UCWWarn++
		l.infoMap |= InfoFECUCWHigh
		l.notify(notif.LinkUCWWarn, info)
		l.mux.Unlock()
	case fec.EventCCWWarn:
		l.mux.Lock()
		l.counters.CCWWarn++
		l.infoMap |= InfoFECCCWHigh
		l.notify(notif.LinkCCWWarn, info)
		l.mux.Unlock()
	}
}

func (l *Link) asyncDownLogged(cause DownCause) {
	if err := l.AsyncDown(cause); err != nil {
		log.Warningf("%s: async down (cause = %s): %v", l, cause, err)
	}
}

// Fault handles a fault status word of the port group. Only an up link is taken down.
func (l *Link) Fault(status uint64) error {
	cause, info := DecodeFault(l.id.Num, status)
	if cause == CauseNone {
		return nil
	}
	l.mux.Lock()
	if l.state != StateUp {
		l.mux.Unlock()
		log.Debugf("%s: fault %s ignored in %s", l, cause, l.state)
		return nil
	}
	l.counters.Fault++
	l.infoMap |= info
	l.mux.Unlock()
	log.Warningf("%s: fault (cause = %s)", l, cause)
	return l.AsyncDown(cause)
}

// CheckFaults reads the fault status word and handles it
func (l *Link) CheckFaults() error {
	if l.State() != StateUp {
		return nil
	}
	status, err := l.hw.PCS.Faults()
	if err != nil {
		return fmt.Errorf("%s: reading faults: %w", l, err)
	}
	return l.Fault(status)
}

// LaneInfo describes one asic lane of a link
type LaneInfo struct {
	Asic     uint8             `json:"asic"`
	Serdes   uint8             `json:"serdes"`
	Status   serdes.LaneStatus `json:"status"`
	EyeUpper uint8             `json:"eye_upper"`
	EyeLower uint8             `json:"eye_lower"`
	TxTaps   serdes.Media      `json:"tx_taps"`
}

// FECInfo describes FEC monitoring of a link
type FECInfo struct {
	Running   bool          `json:"running"`
	Limits    fec.Limits    `json:"limits"`
	Info      fec.Info      `json:"info"`
	Tail      fec.Tail      `json:"tail"`
	UpCache   fec.Counters  `json:"up_cache"`
	DownCache fec.Counters  `json:"down_cache"`
	Warn      fec.WarnState `json:"warn"`
	UCWBER    string        `json:"ucw_ber"`
	CCWBER    string        `json:"ccw_ber"`
}

// Info is a snapshot of a link
type Info struct {
	ID          ID               `json:"id"`
	State       State            `json:"state"`
	LaneMap     uint8            `json:"lane_map"`
	Config      Config           `json:"config"`
	Policy      Policy           `json:"policy"`
	Tech        caps.Tech        `json:"tech"`
	FECMode     caps.FEC         `json:"fec_mode"`
	LinkPartner caps.Caps        `json:"link_partner"`
	Tries       int              `json:"tries"`
	UpFailCause DownCause        `json:"up_fail_cause"`
	UpFailTime  time.Time        `json:"up_fail_time"`
	DownCause   DownCause        `json:"down_cause"`
	DownTime    time.Time        `json:"down_time"`
	InfoMap     InfoMap          `json:"info_map"`
	LastError   string           `json:"last_error,omitempty"`
	Counters    Counters         `json:"counters"`
	Clocks      Clocks           `json:"clocks"`
	Lanes       []LaneInfo       `json:"lanes"`
	FEC         FECInfo          `json:"fec"`
	LLR         *llr.Info        `json:"llr,omitempty"`
	Core        serdes.CoreState `json:"core"`
}

// Describe returns a snapshot of the link. Eye and taps are read only while up.
func (l *Link) Describe() Info {
	l.mux.Lock()
	info := Info{
		ID:          l.id,
		State:       l.state,
		LaneMap:     l.laneMap,
		Config:      l.cfg,
		Policy:      l.policy,
		Tech:        l.tech,
		FECMode:     l.fecMode,
		LinkPartner: l.lpCaps,
		Tries:       l.tries,
		UpFailCause: l.upFailCause,
		UpFailTime:  l.upFailTime,
		DownCause:   l.downCause,
		DownTime:    l.downTime,
		InfoMap:     l.infoMap,
		LastError:   l.lastErr,
		Counters:    l.counters,
		Clocks:      l.clocks,
	}
	info.Counters.AsyncCauses = make(map[DownCause]uint64, len(l.counters.AsyncCauses))
	for c, n := range l.counters.AsyncCauses {
		info.Counters.AsyncCauses[c] = n
	}
	l.mux.Unlock()

	up := info.State == StateUp
	for asic := uint8(0); asic < serdes.MaxAsicLanes; asic++ {
		if l.laneMap&(1<<asic) == 0 {
			continue
		}
		li := LaneInfo{Asic: asic, Status: l.hw.Lanes.Status(asic)}
		if s := l.hw.Lanes.SerdesLanes(1 << asic); len(s) > 0 {
			li.Serdes = s[0]
		}
		if up {
			var err error
			if li.EyeUpper, li.EyeLower, err = l.hw.Lanes.Eye(li.Serdes); err != nil {
				log.Debugf("%s: eye of lane %d: %v", l, li.Serdes, err)
			}
			if li.TxTaps, err = l.hw.Lanes.TxTaps(li.Serdes); err != nil {
				log.Debugf("%s: tx taps of lane %d: %v", l, li.Serdes, err)
			}
		}
		info.Lanes = append(info.Lanes, li)
	}

	info.FEC = FECInfo{
		Running:   l.fecMon.Running(),
		Limits:    l.fecMon.Limits(),
		Info:      l.fecMon.Info(),
		Tail:      l.fecMon.Tail(),
		UpCache:   l.fecMon.UpCache(),
		DownCache: l.fecMon.DownCache(),
		Warn:      l.fecMon.Warn(),
	}
	if ucw, ccw, err := fec.CalcBER(info.FEC.Info); err == nil {
		info.FEC.UCWBER = ucw.String()
		info.FEC.CCWBER = ccw.String()
	}
	if l.hw.LLR != nil {
		li := l.hw.LLR.Info()
		info.LLR = &li
	}
	if l.hw.Core != nil {
		info.Core = l.hw.Core.State()
	}
	return info
}

// Delete takes the link down and releases the LLR instance
func (l *Link) Delete() error {
	if err := l.down(CauseCommand, false); err != nil {
		return err
	}
	if err := l.WaitDown(ResetWait); err != nil {
		return err
	}
	l.mux.Lock()
	l.state = StateInvalid
	l.mux.Unlock()
	if l.hw.LLR != nil {
		if err := l.hw.LLR.Delete(); err != nil && !errors.Is(err, llr.ErrDeleted) {
			return fmt.Errorf("%s: llr delete: %w", l, err)
		}
	}
	return nil
}
