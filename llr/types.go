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

// Package llr drives the link level retry layer of a link
package llr

import (
	"errors"
	"fmt"
	"time"
)

// State of the LLR layer
type State int

// States
const (
	StateInvalid State = iota
	StateOff
	StateConfigured
	StateSetupBusy
	StateSetup
	StateSetupTimeout
	StateStartBusy
	StateRunning
	StateStartTimeout
	StateCanceling
	StateStopBusy
)

// StateToString is a map from State to string
var StateToString = map[State]string{
	StateInvalid:      "invalid",
	StateOff:          "off",
	StateConfigured:   "configured",
	StateSetupBusy:    "setup-busy",
	StateSetup:        "setup",
	StateSetupTimeout: "setup-timeout",
	StateStartBusy:    "start-busy",
	StateRunning:      "running",
	StateStartTimeout: "start-timeout",
	StateCanceling:    "canceling",
	StateStopBusy:     "stop-busy",
}

func (s State) String() string {
	if str, ok := StateToString[s]; ok {
		return str
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Errors
var (
	ErrBusy         = errors.New("llr busy")
	ErrInvalidState = errors.New("invalid llr state")
	ErrAlready      = errors.New("llr already in requested state")
	ErrDeleted      = errors.New("llr deleted")
	ErrTimeout      = errors.New("llr timed out")
	ErrConfig       = errors.New("invalid llr config")
)

// Mode is the hardware LLR mode
type Mode uint8

// Modes
const (
	ModeOff     Mode = 0
	ModeMonitor Mode = 1
	ModeOn      Mode = 2
)

// LinkDownBehavior selects what LLR does with frames while the link is down
type LinkDownBehavior uint8

// Link down behaviors
const (
	LinkDownDiscard    LinkDownBehavior = 1 << 0
	LinkDownBlock      LinkDownBehavior = 1 << 1
	LinkDownBestEffort LinkDownBehavior = 1 << 2
)

var linkDownNames = map[LinkDownBehavior]string{
	LinkDownDiscard:    "discard",
	LinkDownBlock:      "block",
	LinkDownBestEffort: "best-effort",
}

func (b LinkDownBehavior) String() string {
	if s, ok := linkDownNames[b]; ok {
		return s
	}
	return "invalid"
}

// ParseLinkDownBehavior converts a name back to LinkDownBehavior
func ParseLinkDownBehavior(s string) (LinkDownBehavior, error) {
	for b, name := range linkDownNames {
		if name == s {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown link down behavior %q", s)
}

// hwValue is the register encoding of the behavior
func (b LinkDownBehavior) hwValue() uint64 {
	switch b {
	case LinkDownBlock:
		return 1
	case LinkDownBestEffort:
		return 2
	}
	return 0
}

// Config of an LLR instance
type Config struct {
	Mode             Mode             `yaml:"mode" json:"mode"`
	SetupTimeout     time.Duration    `yaml:"setup_timeout" json:"setup_timeout"`
	StartTimeout     time.Duration    `yaml:"start_timeout" json:"start_timeout"`
	LinkDownBehavior LinkDownBehavior `yaml:"link_down_behavior" json:"link_down_behavior"`
	CableLengthCm    uint64           `yaml:"cable_length_cm" json:"cable_length_cm"`
	// Size selects the replay buffer size, 1 to 3
	Size uint64 `yaml:"size" json:"size"`
}

// DefaultConfig returns Config initialized with default values
func DefaultConfig() Config {
	return Config{
		Mode:             ModeOn,
		SetupTimeout:     2 * time.Second,
		StartTimeout:     2 * time.Second,
		LinkDownBehavior: LinkDownDiscard,
		CableLengthCm:    100,
		Size:             1,
	}
}

// Validate Config is sane
func (c *Config) Validate() error {
	if c.Mode != ModeMonitor && c.Mode != ModeOn {
		return fmt.Errorf("mode must be monitor (1) or on (2): %w", ErrConfig)
	}
	if c.SetupTimeout <= 0 {
		return fmt.Errorf("setup_timeout must be greater than zero: %w", ErrConfig)
	}
	if c.StartTimeout <= 0 {
		return fmt.Errorf("start_timeout must be greater than zero: %w", ErrConfig)
	}
	if c.Size == 0 || c.Size > cfgLLRSize {
		return fmt.Errorf("size must be between 1 and %d: %w", cfgLLRSize, ErrConfig)
	}
	if _, ok := linkDownNames[c.LinkDownBehavior]; !ok {
		return fmt.Errorf("link_down_behavior must be exactly one behavior: %w", ErrConfig)
	}
	return nil
}

// Policy of an LLR instance
type Policy struct {
	// ContinuousStartTries re-issues start on a start timeout
	ContinuousStartTries bool `yaml:"continuous_start_tries" json:"continuous_start_tries"`
}

// LoopTime is the measured round trip time to the link partner, nanoseconds
type LoopTime struct {
	Calculated uint64  `json:"calculated"`
	Min        uint64  `json:"min"`
	Max        uint64  `json:"max"`
	Average    uint64  `json:"average"`
	Stddev     float64 `json:"stddev"`
}

// Data is reported on a successful setup
type Data struct {
	Loop       LoopTime `json:"loop"`
	CapData    uint64   `json:"cap_data"`
	CapSeq     uint64   `json:"cap_seq"`
	BytesPerNs uint64   `json:"bytes_per_ns"`
}

// FailCause records why the LLR left an active state
type FailCause int

// Fail causes
const (
	FailNone FailCause = iota
	FailSetupConfig
	FailSetupTimeout
	FailStartTimeout
	FailStartNotAdvancing
	FailCanceled
	FailCommand
)

var failCauseNames = map[FailCause]string{
	FailNone:              "none",
	FailSetupConfig:       "setup-config",
	FailSetupTimeout:      "setup-timeout",
	FailStartTimeout:      "start-timeout",
	FailStartNotAdvancing: "start-not-advancing",
	FailCanceled:          "canceled",
	FailCommand:           "command",
}

func (f FailCause) String() string {
	if s, ok := failCauseNames[f]; ok {
		return s
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler
func (f FailCause) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Callback receives the outcome of an asynchronous setup or start.
// Data is only meaningful when state is StateSetup after a setup.
type Callback func(state State, data Data)
