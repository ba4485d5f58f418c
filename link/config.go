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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/facebook/linkmgr/caps"
	"github.com/facebook/linkmgr/fec"
	"github.com/facebook/linkmgr/serdes"
)

// Errors
var (
	ErrBusy         = errors.New("link busy")
	ErrInvalidState = errors.New("invalid link state")
	ErrConfig       = errors.New("invalid link config")
	ErrNotFound     = errors.New("link not found")
	ErrTimeout      = errors.New("link wait timed out")
	ErrExists       = errors.New("already registered")
)

// State is a link state
type State uint8

// Link states
const (
	StateInvalid State = iota
	StateDown
	StateStarting
	StateUp
	StateStopping
)

// StateToString is a map from State to string
var StateToString = map[State]string{
	StateInvalid:  "invalid",
	StateDown:     "down",
	StateStarting: "starting",
	StateUp:       "up",
	StateStopping: "stopping",
}

func (s State) String() string {
	if n, ok := StateToString[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", s)
}

// MarshalText encodes the state name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Option is a link config option bitmap
type Option uint32

// Config options
const (
	OptAutoneg Option = 1 << iota
	OptAutonegContinuous
	OptSerdesLoopback
	OptHeadshellLoopback
	OptRemoteLoopback
	OptExtendedReachForce
)

var optionNames = map[Option]string{
	OptAutoneg:            "autoneg",
	OptAutonegContinuous:  "autoneg-continuous",
	OptSerdesLoopback:     "serdes-loopback",
	OptHeadshellLoopback:  "headshell-loopback",
	OptRemoteLoopback:     "remote-loopback",
	OptExtendedReachForce: "extended-reach-force",
}

// Has reports whether all options in o are set
func (o Option) Has(f Option) bool {
	return o&f == f
}

func (o Option) String() string {
	names := []string{}
	for i := 0; i < 32; i++ {
		b := Option(1) << i
		if o&b == 0 {
			continue
		}
		if n, ok := optionNames[b]; ok {
			names = append(names, n)
		} else {
			names = append(names, fmt.Sprintf("0x%x", uint32(b)))
		}
	}
	return strings.Join(names, ",")
}

// UnmarshalText parses a comma separated option list
func (o *Option) UnmarshalText(b []byte) error {
	*o = 0
	for _, name := range strings.Split(string(b), ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		found := false
		for opt, n := range optionNames {
			if n == name {
				*o |= opt
				found = true
			}
		}
		if !found {
			return fmt.Errorf("unknown link option %q", name)
		}
	}
	return nil
}

// MarshalText encodes the option names
func (o Option) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// InfiniteUpTries disables the up tries limit
const InfiniteUpTries = -1

// Config of a link
type Config struct {
	UpTimeout    time.Duration `yaml:"up_timeout" json:"up_timeout"`
	MaxUpTries   int           `yaml:"max_up_tries" json:"max_up_tries"`
	RetryBackoff time.Duration `yaml:"retry_backoff" json:"retry_backoff"`
	// RetryBackoffMax caps the doubling backoff between up attempts
	RetryBackoffMax time.Duration `yaml:"retry_backoff_max" json:"retry_backoff_max"`

	FECUpSettleWait time.Duration `yaml:"fec_up_settle_wait" json:"fec_up_settle_wait"`
	FECUpCheckWait  time.Duration `yaml:"fec_up_check_wait" json:"fec_up_check_wait"`
	// FEC up check limits, per second. fec.Auto derives them from the technology.
	FECUpUCWLimit int32 `yaml:"fec_up_ucw_limit" json:"fec_up_ucw_limit"`
	FECUpCCWLimit int32 `yaml:"fec_up_ccw_limit" json:"fec_up_ccw_limit"`

	Caps    caps.Caps        `yaml:"caps" json:"caps"`
	Options Option           `yaml:"options" json:"options"`
	Eye     serdes.EyeLimits `yaml:"eye" json:"eye"`
}

// DefaultConfig returns Config initialized with default values
func DefaultConfig() Config {
	return Config{
		UpTimeout:       30 * time.Second,
		MaxUpTries:      3,
		RetryBackoff:    100 * time.Millisecond,
		RetryBackoffMax: 5 * time.Second,
		FECUpSettleWait: 250 * time.Millisecond,
		FECUpCheckWait:  500 * time.Millisecond,
		FECUpUCWLimit:   fec.Auto,
		FECUpCCWLimit:   fec.Auto,
		Caps: caps.Caps{
			Tech: caps.TechCK400G,
			FEC:  caps.FECRS,
		},
	}
}

// Validate Config is sane
func (c *Config) Validate() error {
	if c.UpTimeout < 0 {
		return fmt.Errorf("up_timeout must be 0 or positive: %w", ErrConfig)
	}
	if c.MaxUpTries == 0 || c.MaxUpTries < InfiniteUpTries {
		return fmt.Errorf("max_up_tries must be positive or -1 (infinite): %w", ErrConfig)
	}
	if c.RetryBackoff < 0 || c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff must be 0 or positive: %w", ErrConfig)
	}
	if c.FECUpSettleWait < 0 || c.FECUpCheckWait < 0 {
		return fmt.Errorf("fec up waits must be 0 or positive: %w", ErrConfig)
	}
	if c.FECUpUCWLimit < fec.Auto || c.FECUpCCWLimit < fec.Auto {
		return fmt.Errorf("fec up limits must be -1 (auto), 0 (off) or positive: %w", ErrConfig)
	}
	if c.Caps.Tech&caps.TechMask == 0 || c.Caps.Tech&^caps.TechMask != 0 {
		return fmt.Errorf("tech map 0x%x invalid: %w", uint32(c.Caps.Tech), ErrConfig)
	}
	if c.Eye.High != 0 && c.Eye.Low >= c.Eye.High {
		return fmt.Errorf("eye low %d must be below high %d: %w", c.Eye.Low, c.Eye.High, ErrConfig)
	}
	return nil
}

// fecUpLimits resolves the up check limits for tech
func (c *Config) fecUpLimits(tech caps.Tech) (ucw, ccw int32) {
	ucw, ccw = c.FECUpUCWLimit, c.FECUpCCWLimit
	if ucw == fec.Auto {
		ucw = fec.LimitCalc(tech, fec.UCWMant, fec.UCWExp)
	}
	if ccw == fec.Auto {
		ccw = fec.LimitCalc(tech, fec.CCWMant, fec.CCWExp)
	}
	return ucw, ccw
}

// backoff returns the wait before retry number tries, doubling from RetryBackoff
func (c *Config) backoff(tries int) time.Duration {
	d := c.RetryBackoff
	for i := 1; i < tries && d < c.RetryBackoffMax; i++ {
		d *= 2
	}
	if c.RetryBackoffMax > 0 && d > c.RetryBackoffMax {
		d = c.RetryBackoffMax
	}
	return d
}

// Policy of a link
type Policy struct {
	FEC fec.Policy `yaml:"fec" json:"fec"`
	// KeepSerdesUp leaves lanes running while the link is down
	KeepSerdesUp bool `yaml:"keep_serdes_up" json:"keep_serdes_up"`
	// UseUnsupportedCable tries to bring the link up on a cable that is not supported
	UseUnsupportedCable bool `yaml:"use_unsupported_cable" json:"use_unsupported_cable"`
}

// DefaultPolicy returns Policy initialized with default values
func DefaultPolicy() Policy {
	return Policy{FEC: fec.DefaultPolicy()}
}

// Validate Policy is sane
func (p *Policy) Validate() error {
	if err := p.FEC.Validate(); err != nil {
		return fmt.Errorf("fec: %v: %w", err, ErrConfig)
	}
	return nil
}
