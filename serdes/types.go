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
	"fmt"
	"time"

	"github.com/facebook/linkmgr/caps"
)

// MaxAsicLanes is a number of lanes in a port group
const MaxAsicLanes = 4

// MaxSerdesLanes is a number of lanes in a serdes macro shared by two port groups
const MaxSerdesLanes = 8

// LaneState is a state of one direction of a lane
type LaneState uint8

// Lane states
const (
	LaneDown LaneState = iota
	LaneSetup
	LaneConfig
	LaneStart
	LaneCheck
	LaneStop
	LaneUp
)

// LaneStateToString is a map from LaneState to string
var LaneStateToString = map[LaneState]string{
	LaneDown:   "down",
	LaneSetup:  "setup",
	LaneConfig: "config",
	LaneStart:  "start",
	LaneCheck:  "check",
	LaneStop:   "stop",
	LaneUp:     "up",
}

func (s LaneState) String() string {
	if n, ok := LaneStateToString[s]; ok {
		return n
	}
	return fmt.Sprintf("unknown(%d)", s)
}

// Dir is a lane direction
type Dir uint8

// Directions
const (
	TX Dir = iota
	RX
)

func (d Dir) String() string {
	if d == TX {
		return "tx"
	}
	return "rx"
}

// Encoding is a line encoding
type Encoding uint8

// Encodings
const (
	EncodingNRZ    Encoding = 2
	EncodingPAM4NR Encoding = 4
	EncodingPAM4ER Encoding = 8
)

func (e Encoding) String() string {
	switch e {
	case EncodingNRZ:
		return "nrz"
	case EncodingPAM4NR:
		return "pam4_nr"
	case EncodingPAM4ER:
		return "pam4_er"
	}
	return fmt.Sprintf("encoding(%d)", e)
}

// PAM4 reports whether encoding is one of the PAM4 variants
func (e Encoding) PAM4() bool {
	return e == EncodingPAM4NR || e == EncodingPAM4ER
}

// Clocking is a reference clock ratio
type Clocking uint8

// Clockings
const (
	Clocking82P5 Clocking = 1 << 0
	Clocking85   Clocking = 1 << 1
)

func (c Clocking) String() string {
	switch c {
	case Clocking82P5:
		return "82.5"
	case Clocking85:
		return "85"
	}
	return fmt.Sprintf("clocking(%d)", c)
}

// pllDivider returns integer and upper fractional parts of the PLL divider
func (c Clocking) pllDivider() (uint16, uint16) {
	if c == Clocking82P5 {
		return 82, 2
	}
	return 85, 0
}

// OSR is an oversample ratio
type OSR uint8

// Oversample ratios
const (
	OSRx1    OSR = 0
	OSRx2    OSR = 1
	OSRx4    OSR = 2
	OSRx42P5 OSR = 33
)

// Width is a datapath width
type Width uint8

// Datapath widths
const (
	Width40  Width = 0
	Width80  Width = 1
	Width160 Width = 2
)

// Settings are core serdes settings derived from the link technology
type Settings struct {
	OSR      OSR      `json:"osr"`
	Encoding Encoding `json:"encoding"`
	Clocking Clocking `json:"clocking"`
	Width    Width    `json:"width"`
	DFE      bool     `json:"dfe"`
	Scramble bool     `json:"scramble"`
}

// Mode returns the oversample/encoding/width word programmed into the lane
func (s Settings) Mode() uint16 {
	mode := uint16(s.OSR)
	if s.Encoding != EncodingNRZ {
		mode |= 1 << 6
	}
	mode |= uint16(s.Width) << 7
	return mode
}

// RxConfig returns firmware lane configuration word
func (s Settings) RxConfig(media uint8) uint16 {
	var config uint16
	if s.DFE {
		config |= 1 << 2
	}
	config |= uint16(media&0x3) << 5
	if s.Scramble {
		config |= 1 << 8
	}
	switch s.Encoding {
	case EncodingPAM4NR:
		config |= 1 << 14
	case EncodingNRZ:
		config |= 1 << 15
	}
	return config
}

// SettingsFor returns serdes settings for a technology
func SettingsFor(tech caps.Tech, extendedReach bool, downshifted bool) Settings {
	s := Settings{DFE: true, Scramble: !downshifted}
	switch tech.Best() {
	case caps.TechBJ100G:
		s.Encoding, s.Clocking, s.Width, s.OSR = EncodingNRZ, Clocking82P5, Width40, OSRx2
	case caps.TechCD50G, caps.TechCD100G, caps.TechBS200G:
		s.Encoding, s.Clocking, s.Width, s.OSR = EncodingPAM4NR, Clocking85, Width80, OSRx2
	default:
		s.Encoding, s.Clocking, s.Width, s.OSR = EncodingPAM4NR, Clocking85, Width160, OSRx1
	}
	if extendedReach {
		s.Encoding = EncodingPAM4ER
	}
	return s
}

// AutonegSettings are the fixed settings used while autonegotiating
func AutonegSettings() Settings {
	return Settings{OSR: OSRx42P5, Encoding: EncodingNRZ, Clocking: Clocking85, Width: Width40}
}

// Media holds per cable transmit equalization and media type
type Media struct {
	Pre3   int16 `json:"pre3" yaml:"pre3"`
	Pre2   int16 `json:"pre2" yaml:"pre2"`
	Pre1   int16 `json:"pre1" yaml:"pre1"`
	Cursor int16 `json:"cursor" yaml:"cursor"`
	Post1  int16 `json:"post1" yaml:"post1"`
	Post2  int16 `json:"post2" yaml:"post2"`
	Media  uint8 `json:"media" yaml:"media"`
}

// LoopbackMedia returns media settings used in serdes loopback
func LoopbackMedia() Media {
	return Media{Cursor: 168}
}

// EyeLimits bound the eye metric accepted by the quality check, exclusive
type EyeLimits struct {
	Low  uint8 `json:"low"`
	High uint8 `json:"high"`
}

// Within reports whether v is strictly inside the limits
func (e EyeLimits) Within(v uint8) bool {
	return v > e.Low && v < e.High
}

// DefaultEyeLimits returns eye limits for a technology
func DefaultEyeLimits(tech caps.Tech) EyeLimits {
	if tech.Best() == caps.TechBJ100G {
		return EyeLimits{Low: 25, High: 150}
	}
	return EyeLimits{Low: 15, High: 60}
}

// extendedEyeLimits returns eye limits after link training negotiated extended reach
func extendedEyeLimits(tech caps.Tech) EyeLimits {
	if tech.Best() == caps.TechBJ100G {
		return EyeLimits{Low: 25, High: 150}
	}
	return EyeLimits{Low: 5, High: 30}
}

// Timing controls the bounded poll loops of lane bring up
type Timing struct {
	TxCheckTries         int           `yaml:"tx_check_tries"`
	TxCheckInterval      time.Duration `yaml:"tx_check_interval"`
	RxCheckTriesPAM4     int           `yaml:"rx_check_tries_pam4"`
	RxCheckTriesNRZ      int           `yaml:"rx_check_tries_nrz"`
	RxCheckInterval      time.Duration `yaml:"rx_check_interval"`
	QualityCheckTries    int           `yaml:"quality_check_tries"`
	QualityCheckInterval time.Duration `yaml:"quality_check_interval"`
	PowerSettle          time.Duration `yaml:"power_settle"`
	ResetPulse           time.Duration `yaml:"reset_pulse"`
	CoreInitTries        int           `yaml:"core_init_tries"`
	RAMInitTries         int           `yaml:"ram_init_tries"`
	MicroActiveTries     int           `yaml:"micro_active_tries"`
	CoreInitInterval     time.Duration `yaml:"core_init_interval"`
	PLLSettle            time.Duration `yaml:"pll_settle"`
}

// DefaultTiming returns hardware timing
func DefaultTiming() Timing {
	return Timing{
		TxCheckTries:         10,
		TxCheckInterval:      100 * time.Millisecond,
		RxCheckTriesPAM4:     70,
		RxCheckTriesNRZ:      20,
		RxCheckInterval:      300 * time.Millisecond,
		QualityCheckTries:    20,
		QualityCheckInterval: 200 * time.Millisecond,
		PowerSettle:          10 * time.Millisecond,
		ResetPulse:           10 * time.Microsecond,
		CoreInitTries:        10,
		RAMInitTries:         50,
		MicroActiveTries:     100,
		CoreInitInterval:     time.Millisecond,
		PLLSettle:            5 * time.Millisecond,
	}
}

// Validate Timing is sane
func (t *Timing) Validate() error {
	if t.TxCheckTries <= 0 || t.RxCheckTriesPAM4 <= 0 || t.RxCheckTriesNRZ <= 0 || t.QualityCheckTries <= 0 ||
		t.CoreInitTries <= 0 || t.RAMInitTries <= 0 || t.MicroActiveTries <= 0 {
		return fmt.Errorf("check tries must be greater than zero")
	}
	if t.TxCheckInterval < 0 || t.RxCheckInterval < 0 || t.QualityCheckInterval < 0 || t.CoreInitInterval < 0 {
		return fmt.Errorf("check intervals must be 0 or positive")
	}
	return nil
}

func (t *Timing) rxCheckTries(e Encoding) int {
	if e.PAM4() {
		return t.RxCheckTriesPAM4
	}
	return t.RxCheckTriesNRZ
}
