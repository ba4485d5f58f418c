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
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facebook/linkmgr/caps"
)

func TestLimitCalc(t *testing.T) {
	require.Equal(t, int32(42), LimitCalc(caps.TechCK400G, UCWMant, UCWExp))
	require.Equal(t, int32(8500000), LimitCalc(caps.TechCK400G, CCWMant, CCWExp))
	require.Equal(t, int32(10), LimitCalc(caps.TechBJ100G, UCWMant, UCWExp))
	require.Equal(t, int32(5), LimitCalc(caps.TechCD50G, UCWMant, UCWExp))
	// unknown technology falls back to a single 100G lane
	require.Equal(t, int32(10), LimitCalc(0, UCWMant, UCWExp))
	require.Equal(t, int32(math.MaxInt32), LimitCalc(caps.TechCK400G, 1, 0))
}

func TestLineRate(t *testing.T) {
	require.Equal(t, rate100<<2, LineRate(caps.TechCK400G|caps.TechCK200G))
	require.Equal(t, rate50<<2, LineRate(caps.TechBS200G))
	require.Equal(t, rate50<<1, LineRate(caps.TechCD100G))
}

func TestRateExceeds(t *testing.T) {
	tests := []struct {
		name     string
		limit    int32
		count    uint64
		periodMs uint32
		want     bool
	}{
		{"equal is exceeding", 10, 5, 500, true},
		{"above", 5, 4, 500, true},
		{"below", 10, 4, 500, false},
		{"limit disabled", 0, 1000, 500, false},
		{"no period", 10, 1000, 0, false},
		{"no errors", 1, 0, 500, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, RateExceeds(tt.limit, tt.count, tt.periodMs))
		})
	}
}

func TestDelta(t *testing.T) {
	prev := Counters{UCW: 1, CCW: 10, GCW: 100}
	prev.Lanes[3] = 7
	prev.Tail[14] = 2
	curr := Counters{UCW: 4, CCW: 30, GCW: 1100}
	curr.Lanes[3] = 9
	curr.Tail[14] = 5

	info, tail := Delta(prev, curr, 500)
	require.Equal(t, uint64(3), info.UCW)
	require.Equal(t, uint64(20), info.CCW)
	require.Equal(t, uint64(1000), info.GCW)
	require.Equal(t, uint64(2), info.Lanes[3])
	require.Equal(t, uint32(500), info.PeriodMs)
	require.Equal(t, uint64(3), tail.CCWBins[14])
	require.Equal(t, uint32(500), tail.PeriodMs)
	require.True(t, info.UCWExceeds(6))
	require.False(t, info.UCWExceeds(7))
	require.True(t, info.CCWExceeds(40))
}

func TestPolicyResolve(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())
	l, err := p.Resolve(caps.TechCK400G)
	require.NoError(t, err)
	require.Equal(t, Limits{
		UCWDown:  42,
		UCWWarn:  21,
		CCWDown:  0,
		CCWWarn:  4250000,
		PeriodMs: DefaultPeriodMs,
	}, l)

	l, err = p.Resolve(caps.TechBJ100G)
	require.NoError(t, err)
	require.Equal(t, int32(10), l.UCWDown)
	require.Equal(t, int32(5), l.UCWWarn)
	require.Equal(t, int32(1031250), l.CCWWarn)

	p = Policy{UCWDownLimit: 100, UCWWarnLimit: 0, CCWDownLimit: 2000, CCWWarnLimit: Auto, PeriodMs: 250, DownChances: 2}
	l, err = p.Resolve(caps.TechCK400G)
	require.NoError(t, err)
	require.Equal(t, Limits{UCWDown: 100, CCWDown: 2000, CCWWarn: 4250000, PeriodMs: 250}, l)
}

func TestPolicyValidate(t *testing.T) {
	p := DefaultPolicy()
	p.UCWDownLimit = -2
	require.Error(t, p.Validate())

	p = DefaultPolicy()
	p.DownChances = 0
	require.Error(t, p.Validate())

	p = DefaultPolicy()
	p.LimitExpr = "rate * bogus"
	require.Error(t, p.Validate())

	p = DefaultPolicy()
	p.LimitExpr = "rate * mant * pow10(exp)"
	require.NoError(t, p.Validate())
}

func TestLimitExpr(t *testing.T) {
	e, err := NewLimitExpr("rate * mant * pow10(exp)")
	require.NoError(t, err)
	v, err := e.Eval(caps.TechCK400G, UCWMant, UCWExp)
	require.NoError(t, err)
	require.InDelta(t, 42.5, v, 0.001)
	require.Equal(t, int32(42), e.Calc(caps.TechCK400G, UCWMant, UCWExp))

	e, err = NewLimitExpr("min(rate * mant * pow10(exp) / lanes, 8)")
	require.NoError(t, err)
	require.Equal(t, int32(8), e.Calc(caps.TechCK400G, UCWMant, UCWExp))

	e, err = NewLimitExpr("mant - 10")
	require.NoError(t, err)
	require.Equal(t, int32(0), e.Calc(caps.TechCK400G, UCWMant, UCWExp))

	_, err = NewLimitExpr("speed * 2")
	require.Error(t, err)
	_, err = NewLimitExpr("rate *")
	require.Error(t, err)

	p := DefaultPolicy()
	p.LimitExpr = "max(rate * mant * pow10(exp), 100)"
	l, err := p.Resolve(caps.TechCK400G)
	require.NoError(t, err)
	require.Equal(t, int32(100), l.UCWDown)
	require.Equal(t, int32(50), l.UCWWarn)
}

func TestCalcBER(t *testing.T) {
	_, _, err := CalcBER(Info{PeriodMs: 1000})
	require.ErrorIs(t, err, ErrBER)
	_, _, err = CalcBER(Info{GCW: 10})
	require.ErrorIs(t, err, ErrBER)
	_, _, err = CalcBER(Info{GCW: 10, CCW: maxCCW + 1, PeriodMs: 1000})
	require.ErrorIs(t, err, ErrBER)

	ucw, ccw, err := CalcBER(Info{UCW: 1, GCW: 1000000, PeriodMs: 1000})
	require.NoError(t, err)
	require.Equal(t, BER{Mant: 183, Exp: -12}, ucw)
	require.Equal(t, "183e-12", ucw.String())
	require.InDelta(t, 1.83e-10, ucw.Float(), 1e-15)
	require.Equal(t, BER{Mant: 0, Exp: -6}, ccw)

	_, ccw, err = CalcBER(Info{CCW: 5440000, GCW: 1000000, PeriodMs: 1000})
	require.NoError(t, err)
	require.Equal(t, BER{Mant: 999, Exp: -6}, ccw)
}
