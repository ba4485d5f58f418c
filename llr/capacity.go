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
	"fmt"

	"github.com/eclesh/welford"
	"golang.org/x/exp/constraints"

	"github.com/facebook/linkmgr/caps"
)

// Capacity sizing
const (
	bytesPerFrame   = 9216
	numFrames       = 2
	byteQuanta      = 64
	frameSize       = 32
	asicTxDelayNs   = 25
	asicRxDelayNs   = 91
	propagationRate = 4
	// LoopTimeSamples is how many loop time measurements a setup collects
	LoopTimeSamples = 10
)

// Group describes the port group an LLR instance belongs to
type Group struct {
	Tech      caps.Tech      `json:"tech"`
	Furcation caps.Furcation `json:"furcation"`
	Fabric    bool           `json:"fabric"`
}

// Settings are the derived hardware settings of a setup
type Settings struct {
	Mode             Mode
	LinkDownBehavior LinkDownBehavior
	BytesPerNs       uint64
	MaxCapData       uint64
	MaxCapSeq        uint64
	Size             uint64
}

func divRoundUp[T constraints.Unsigned](n, d T) T {
	return (n + d - 1) / d
}

func clampMax[T constraints.Ordered](v, max T) T {
	if v > max {
		return max
	}
	return v
}

// bytesPerNs returns link bandwidth in bytes per nanosecond, rounded up
func bytesPerNs(tech caps.Tech) uint64 {
	switch tech {
	case caps.TechCK400G:
		return 50
	case caps.TechCK200G, caps.TechBS200G:
		return 25
	case caps.TechCK100G, caps.TechCD100G, caps.TechBJ100G:
		return 13
	case caps.TechCD50G:
		return 7
	}
	return 0
}

// NewSettings derives settings for a group. The group must run exactly one technology.
func NewSettings(cfg Config, g Group) (Settings, error) {
	if !g.Tech.Single() {
		return Settings{}, fmt.Errorf("tech map invalid (map = 0x%08X): %w", uint32(g.Tech), ErrConfig)
	}
	s := Settings{
		Mode:             cfg.Mode,
		LinkDownBehavior: cfg.LinkDownBehavior,
		BytesPerNs:       bytesPerNs(g.Tech),
		Size:             cfg.Size,
	}
	if s.BytesPerNs == 0 {
		return Settings{}, fmt.Errorf("tech %s: %w", g.Tech, ErrConfig)
	}
	furcation := g.Furcation
	if g.Fabric {
		furcation = caps.FurcationX1
	}
	switch furcation {
	case caps.FurcationX1:
		s.MaxCapData, s.MaxCapSeq = 0x800, 0x800
	case caps.FurcationX2:
		s.MaxCapData, s.MaxCapSeq = 0x400, 0x400
	case caps.FurcationX4:
		s.MaxCapData, s.MaxCapSeq = 0x200, 0x200
	default:
		return Settings{}, fmt.Errorf("furcation %d: %w", furcation, ErrConfig)
	}
	return s, nil
}

// Capacity returns replay buffer data and sequence capacity for an average loop time
func (s Settings) Capacity(averageNs uint64) (data, seq uint64) {
	bytes := averageNs*s.BytesPerNs + bytesPerFrame*numFrames
	data = clampMax(divRoundUp[uint64](bytes, byteQuanta), s.MaxCapData)
	seq = clampMax(divRoundUp[uint64](bytes, frameSize), s.MaxCapSeq)
	return data, seq
}

// CalculatedLoopTime estimates loop time in ns from cable length and asic delays
func CalculatedLoopTime(cableLengthCm uint64) uint64 {
	return 2*cableLengthCm*propagationRate/100 + 2*(asicTxDelayNs+asicRxDelayNs)
}

// NewLoopTime summarizes loop time samples
func NewLoopTime(samples []uint64) LoopTime {
	var lt LoopTime
	if len(samples) == 0 {
		return lt
	}
	s := welford.New()
	var total uint64
	lt.Min = samples[0]
	lt.Max = samples[0]
	for _, v := range samples {
		if v < lt.Min {
			lt.Min = v
		}
		if v > lt.Max {
			lt.Max = v
		}
		total += v
		s.Add(float64(v))
	}
	lt.Average = divRoundUp(total, uint64(len(samples)))
	lt.Stddev = s.Stddev()
	return lt
}
