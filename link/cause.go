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
	"fmt"
	"math/bits"
	"strings"
)

// DownCause is a bitmap of reasons a link went or stayed down
type DownCause uint32

// Down causes. Bits 1..20 keep their historical values.
const (
	CauseNone             DownCause = 0
	CauseBadEye           DownCause = 1 << 1
	CauseUCW              DownCause = 1 << 2
	CauseCCW              DownCause = 1 << 3
	CauseAlign            DownCause = 1 << 4
	CauseLocalFault       DownCause = 1 << 5
	CauseRemoteFault      DownCause = 1 << 6
	CauseSerdes           DownCause = 1 << 7
	CauseDown             DownCause = 1 << 8
	CauseUpTries          DownCause = 1 << 9
	CauseAutonegNoMatch   DownCause = 1 << 10
	CauseAutonegFail      DownCause = 1 << 11
	CauseConfig           DownCause = 1 << 12
	CauseIntrEnable       DownCause = 1 << 13
	CauseTimeout          DownCause = 1 << 14
	CauseCanceled         DownCause = 1 << 15
	CauseUnsupportedCable DownCause = 1 << 16
	CauseCommand          DownCause = 1 << 17
	CauseDownshiftFailed  DownCause = 1 << 18
	CauseLLRReplayMax     DownCause = 1 << 19
	CauseUpshiftFailed    DownCause = 1 << 20
	CauseSerdesConfig     DownCause = 1 << 21
	CauseSerdesSignal     DownCause = 1 << 22
	CauseSerdesQuality    DownCause = 1 << 23
	CauseLLRStarved       DownCause = 1 << 24
)

// CauseFatal ends an up attempt regardless of tries left
const CauseFatal = CauseConfig | CauseUnsupportedCable | CauseAutonegNoMatch | CauseAutonegFail |
	CauseIntrEnable | CauseUCW | CauseDownshiftFailed | CauseUpshiftFailed

// DownCauseToString is a map from a single DownCause bit to string
var DownCauseToString = map[DownCause]string{
	CauseBadEye:           "bad-eye",
	CauseUCW:              "ucw",
	CauseCCW:              "ccw",
	CauseAlign:            "align",
	CauseLocalFault:       "local-fault",
	CauseRemoteFault:      "remote-fault",
	CauseSerdes:           "serdes",
	CauseDown:             "down",
	CauseUpTries:          "up-tries",
	CauseAutonegNoMatch:   "autoneg-nomatch",
	CauseAutonegFail:      "autoneg-fail",
	CauseConfig:           "config",
	CauseIntrEnable:       "intr-enable",
	CauseTimeout:          "timeout",
	CauseCanceled:         "canceled",
	CauseUnsupportedCable: "unsupported-cable",
	CauseCommand:          "command",
	CauseDownshiftFailed:  "downshift-failed",
	CauseLLRReplayMax:     "llr-replay-max",
	CauseUpshiftFailed:    "upshift-failed",
	CauseSerdesConfig:     "serdes-config",
	CauseSerdesSignal:     "serdes-signal",
	CauseSerdesQuality:    "serdes-quality",
	CauseLLRStarved:       "llr-starved",
}

// Bits returns the individual causes set, lowest first
func (c DownCause) Bits() []DownCause {
	ret := []DownCause{}
	for v := uint32(c); v != 0; v &= v - 1 {
		ret = append(ret, DownCause(1)<<bits.TrailingZeros32(v))
	}
	return ret
}

func (c DownCause) String() string {
	if c == CauseNone {
		return "none"
	}
	names := []string{}
	for _, b := range c.Bits() {
		if n, ok := DownCauseToString[b]; ok {
			names = append(names, n)
		} else {
			names = append(names, fmt.Sprintf("0x%x", uint32(b)))
		}
	}
	return strings.Join(names, ",")
}

// MarshalText encodes the cause names
func (c DownCause) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Fatal reports whether any cause ends the up sequence immediately
func (c DownCause) Fatal() bool {
	return c&CauseFatal != 0
}

// ParseDownCause is the inverse of String
func ParseDownCause(s string) (DownCause, error) {
	if s == "" || s == "none" {
		return CauseNone, nil
	}
	var c DownCause
	for _, name := range strings.Split(s, ",") {
		found := false
		for b, n := range DownCauseToString {
			if n == strings.TrimSpace(name) {
				c |= b
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown down cause %q", name)
		}
	}
	return c, nil
}

// InfoMap is a bitmap of bring up progress and observations
type InfoMap uint64

// Info map bits
const (
	InfoSerdesOK InfoMap = 1 << iota
	InfoSerdesBadEyes
	InfoPCSOK
	InfoPCSLocalFault
	InfoPCSRemoteFault
	InfoPCSLinkDown
	InfoFECCheck
	InfoFECUCWHigh
	InfoFECCCWHigh
	InfoFECOK
	InfoLinkUpTimeout
	InfoLinkUp
	InfoANDone
	InfoANError
	InfoLLRStarved
	InfoLLRReplayMax
	InfoMACOK
)

var infoNames = []string{
	"serdes-ok", "serdes-bad-eyes", "pcs-ok", "pcs-local-fault", "pcs-remote-fault", "pcs-link-down",
	"fec-check", "fec-ucw-high", "fec-ccw-high", "fec-ok", "link-up-timeout", "link-up",
	"an-done", "an-error", "llr-starved", "llr-replay-max", "mac-ok",
}

func (m InfoMap) String() string {
	names := []string{}
	for i, n := range infoNames {
		if m&(1<<i) != 0 {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// MarshalText encodes the set bit names
func (m InfoMap) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Fault status word bits, one group of four per link
const (
	faultLinkDown = 1 << iota
	faultRemote
	faultLocal
	faultReplayMax
	faultsPerLink = 4
	// starvation flags live in the upper word
	faultStarvedShift = 32
)

// FaultBits returns the status word a link reports for the given faults
func FaultBits(num uint8, linkDown, remote, local, replayMax, starved bool) uint64 {
	var v uint64
	set := func(on bool, bit uint64) {
		if on {
			v |= bit << (uint(num) * faultsPerLink)
		}
	}
	set(linkDown, faultLinkDown)
	set(remote, faultRemote)
	set(local, faultLocal)
	set(replayMax, faultReplayMax)
	if starved {
		v |= 1 << (faultStarvedShift + uint(num))
	}
	return v
}

// DecodeFault picks the single most severe cause of link num from a fault status word.
// LLR starvation comes first, then replay at max, then local fault, remote fault and link down.
func DecodeFault(num uint8, status uint64) (DownCause, InfoMap) {
	flags := status >> (uint(num) * faultsPerLink)
	switch {
	case status&(1<<(faultStarvedShift+uint(num))) != 0:
		return CauseLLRStarved, InfoLLRStarved
	case flags&faultReplayMax != 0:
		return CauseLLRReplayMax, InfoLLRReplayMax
	case flags&faultLocal != 0:
		return CauseLocalFault, InfoPCSLocalFault
	case flags&faultRemote != 0:
		return CauseRemoteFault, InfoPCSRemoteFault
	case flags&faultLinkDown != 0:
		return CauseDown, InfoPCSLinkDown
	}
	return CauseNone, 0
}
