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

// Package fec monitors forward error correction counters of a link
package fec

import (
	"errors"
	"fmt"
	"math"

	"github.com/facebook/linkmgr/caps"
)

// Counter array sizes
const (
	NumLanes   = 16
	NumCCWBins = 15
)

// DefaultPeriodMs is the monitor period used when the policy asks for auto
const DefaultPeriodMs = 500

// DefaultDownChances is how many consecutive violating samples trigger a down
const DefaultDownChances = 3

// Auto limit BER targets
const (
	UCWMant = 1
	UCWExp  = -10
	CCWMant = 2
	CCWExp  = -5
)

// Serdes line rates, bits per second
const (
	rate25  uint64 = 25781250000
	rate50  uint64 = 53125000000
	rate100 uint64 = 106250000000
)

// bits per RS(544,514) codeword with 10 bit symbols
const cwBits = 5440

// Auto in a policy limit selects the technology derived default
const Auto = -1

// ErrBER is returned when counters can't be normalized
var ErrBER = errors.New("invalid counters for BER")

// Counters is a raw snapshot of hardware counters
type Counters struct {
	UCW   uint64             `json:"ucw"`
	CCW   uint64             `json:"ccw"`
	GCW   uint64             `json:"gcw"`
	Lanes [NumLanes]uint64   `json:"lanes"`
	Tail  [NumCCWBins]uint64 `json:"ccw_bins"`
}

// Limits are the thresholds in effect, codewords per second, 0 disables
type Limits struct {
	UCWDown  int32 `json:"ucw_down_limit"`
	UCWWarn  int32 `json:"ucw_warn_limit"`
	CCWDown  int32 `json:"ccw_down_limit"`
	CCWWarn  int32 `json:"ccw_warn_limit"`
	PeriodMs int32 `json:"period_ms"`
}

// Info is the delta between the last two samples
type Info struct {
	UCW      uint64           `json:"ucw"`
	CCW      uint64           `json:"ccw"`
	GCW      uint64           `json:"gcw"`
	Lanes    [NumLanes]uint64 `json:"lanes"`
	PeriodMs uint32           `json:"period_ms"`
	Monitor  Limits           `json:"monitor"`
}

// Tail is the correction depth histogram delta between the last two samples
type Tail struct {
	CCWBins  [NumCCWBins]uint64 `json:"ccw_bins"`
	PeriodMs uint32             `json:"period_ms"`
}

// Policy is the user facing monitor configuration. Auto (-1) derives a default.
type Policy struct {
	UCWDownLimit int32  `yaml:"ucw_down_limit" json:"ucw_down_limit"`
	UCWWarnLimit int32  `yaml:"ucw_warn_limit" json:"ucw_warn_limit"`
	CCWDownLimit int32  `yaml:"ccw_down_limit" json:"ccw_down_limit"`
	CCWWarnLimit int32  `yaml:"ccw_warn_limit" json:"ccw_warn_limit"`
	PeriodMs     int32  `yaml:"period_ms" json:"period_ms"`
	DownChances  int    `yaml:"down_chances" json:"down_chances"`
	LimitExpr    string `yaml:"limit_expr" json:"limit_expr"`
}

// DefaultPolicy returns all auto limits
func DefaultPolicy() Policy {
	return Policy{
		UCWDownLimit: Auto,
		UCWWarnLimit: Auto,
		CCWDownLimit: Auto,
		CCWWarnLimit: Auto,
		PeriodMs:     Auto,
		DownChances:  DefaultDownChances,
	}
}

// Validate Policy is sane
func (p *Policy) Validate() error {
	for name, v := range map[string]int32{
		"ucw_down_limit": p.UCWDownLimit,
		"ucw_warn_limit": p.UCWWarnLimit,
		"ccw_down_limit": p.CCWDownLimit,
		"ccw_warn_limit": p.CCWWarnLimit,
		"period_ms":      p.PeriodMs,
	} {
		if v < Auto {
			return fmt.Errorf("%s must be -1 (auto), 0 (off) or positive", name)
		}
	}
	if p.DownChances <= 0 {
		return fmt.Errorf("down_chances must be greater than zero")
	}
	if p.LimitExpr != "" {
		if _, err := NewLimitExpr(p.LimitExpr); err != nil {
			return fmt.Errorf("limit_expr: %w", err)
		}
	}
	return nil
}

// Resolve turns a policy into limits for a link running tech
func (p *Policy) Resolve(tech caps.Tech) (Limits, error) {
	calc := LimitCalc
	if p.LimitExpr != "" {
		e, err := NewLimitExpr(p.LimitExpr)
		if err != nil {
			return Limits{}, err
		}
		calc = e.Calc
	}
	l := Limits{
		UCWDown:  p.UCWDownLimit,
		UCWWarn:  p.UCWWarnLimit,
		CCWDown:  p.CCWDownLimit,
		CCWWarn:  p.CCWWarnLimit,
		PeriodMs: p.PeriodMs,
	}
	if l.PeriodMs == Auto {
		l.PeriodMs = DefaultPeriodMs
	}
	// no auto CCW down limit, corrected codewords alone never take a link down
	if l.CCWDown == Auto {
		l.CCWDown = 0
	}
	if l.CCWWarn == Auto {
		l.CCWWarn = calc(tech, CCWMant, CCWExp) >> 1
	}
	if l.UCWDown == Auto {
		l.UCWDown = calc(tech, UCWMant, UCWExp)
	}
	if l.UCWWarn == Auto {
		l.UCWWarn = calc(tech, UCWMant, UCWExp) >> 1
	}
	return l, nil
}

// LineRate returns bits per second of a link running tech
func LineRate(tech caps.Tech) uint64 {
	switch {
	case tech&caps.TechCK400G != 0:
		return rate100 << 2
	case tech&caps.TechCK200G != 0:
		return rate100 << 1
	case tech&caps.TechBS200G != 0:
		return rate50 << 2
	case tech&caps.TechCK100G != 0:
		return rate100
	case tech&caps.TechBJ100G != 0:
		return rate25 << 2
	case tech&caps.TechCD100G != 0:
		return rate50 << 1
	case tech&caps.TechCD50G != 0:
		return rate50
	}
	return rate100
}

// LimitCalc returns line rate scaled by mant * 10^exp, clamped to int32
func LimitCalc(tech caps.Tech, mant uint32, exp int) int32 {
	limit := LineRate(tech) * uint64(mant)
	for x := exp; x < 0; x++ {
		limit /= 10
	}
	if limit > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(limit)
}

// RateExceeds reports whether count over periodMs reaches limit per second.
// A zero limit or zero period never exceeds.
func RateExceeds(limit int32, count uint64, periodMs uint32) bool {
	if limit <= 0 || periodMs == 0 {
		return false
	}
	return uint64(limit)*uint64(periodMs) <= count*1000
}

// UCWExceeds applies RateExceeds to uncorrected codewords
func (i Info) UCWExceeds(limit int32) bool {
	return RateExceeds(limit, i.UCW, i.PeriodMs)
}

// CCWExceeds applies RateExceeds to corrected codewords
func (i Info) CCWExceeds(limit int32) bool {
	return RateExceeds(limit, i.CCW, i.PeriodMs)
}

// Delta computes Info and Tail from two samples taken periodMs apart
func Delta(prev, curr Counters, periodMs uint32) (Info, Tail) {
	info := Info{
		UCW:      curr.UCW - prev.UCW,
		CCW:      curr.CCW - prev.CCW,
		GCW:      curr.GCW - prev.GCW,
		PeriodMs: periodMs,
	}
	tail := Tail{PeriodMs: periodMs}
	for x := range info.Lanes {
		info.Lanes[x] = curr.Lanes[x] - prev.Lanes[x]
	}
	for x := range tail.CCWBins {
		tail.CCWBins[x] = curr.Tail[x] - prev.Tail[x]
	}
	return info, tail
}

// BER is a fixed point bit error rate, Mant * 10^Exp
type BER struct {
	Mant uint32 `json:"mant"`
	Exp  int32  `json:"exp"`
}

func (b BER) String() string {
	return fmt.Sprintf("%de%d", b.Mant, b.Exp)
}

// Float returns BER as a float
func (b BER) Float() float64 {
	return float64(b.Mant) * math.Pow10(int(b.Exp))
}

// BER multipliers keep precision without floating point
const (
	ccwBERExp = 6
	ucwBERExp = 12
)

var (
	ccwBERMult = uint64(math.Pow10(ccwBERExp))
	ucwBERMult = uint64(math.Pow10(ucwBERExp))
	maxCCW     = math.MaxUint64 / (1000 * ccwBERMult)
	maxUCW     = math.MaxUint64 / (1000 * ucwBERMult)
)

func fixed(rate uint64, exp int32) BER {
	mag := int32(0)
	// keep at least 2 significant digits
	for rate/100 > 9 {
		rate /= 100
		mag += 2
	}
	return BER{Mant: uint32(rate), Exp: mag - exp}
}

// CalcBER normalizes UCW and CCW of info against total bits transferred
func CalcBER(info Info) (ucw BER, ccw BER, err error) {
	if info.CCW+info.GCW == 0 {
		return ucw, ccw, fmt.Errorf("no codewords: %w", ErrBER)
	}
	if info.PeriodMs == 0 {
		return ucw, ccw, fmt.Errorf("zero period: %w", ErrBER)
	}
	if info.CCW > maxCCW {
		return ucw, ccw, fmt.Errorf("ccw %d > %d: %w", info.CCW, maxCCW, ErrBER)
	}
	if info.UCW > maxUCW {
		return ucw, ccw, fmt.Errorf("ucw %d > %d: %w", info.UCW, maxUCW, ErrBER)
	}
	total := (info.CCW + info.GCW*cwBits) * uint64(info.PeriodMs)
	ccw = fixed(info.CCW*1000*ccwBERMult/total, ccwBERExp)
	ucw = fixed(info.UCW*1000*ucwBERMult/total, ucwBERExp)
	return ucw, ccw, nil
}
