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

// Package caps describes link capabilities negotiated or configured for a link
package caps

import (
	"fmt"
	"math/bits"
	"strings"
)

// Tech is a bitmap of link technologies
type Tech uint32

// Technologies. Bit positions are shared with the kernel interface.
const (
	TechBJ100G Tech = 1 << 8
	TechCD50G  Tech = 1 << 13
	TechCD100G Tech = 1 << 14
	TechBS200G Tech = 1 << 15
	TechCK100G Tech = 1 << 16
	TechCK200G Tech = 1 << 17
	TechCK400G Tech = 1 << 18
)

// TechMask covers all known technologies
const TechMask = TechBJ100G | TechCD50G | TechCD100G | TechBS200G | TechCK100G | TechCK200G | TechCK400G

// technologies ordered from the fastest
var techOrder = []Tech{TechCK400G, TechCK200G, TechBS200G, TechCK100G, TechCD100G, TechBJ100G, TechCD50G}

var techNames = map[Tech]string{
	TechBJ100G: "bj_100g",
	TechCD50G:  "cd_50g",
	TechCD100G: "cd_100g",
	TechBS200G: "bs_200g",
	TechCK100G: "ck_100g",
	TechCK200G: "ck_200g",
	TechCK400G: "ck_400g",
}

// ParseTech parses a single technology name
func ParseTech(s string) (Tech, error) {
	for t, n := range techNames {
		if n == strings.ToLower(s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown tech %q", s)
}

func (t Tech) String() string {
	if t == 0 {
		return "none"
	}
	names := []string{}
	for _, one := range techOrder {
		if t&one != 0 {
			names = append(names, techNames[one])
		}
	}
	if rest := t &^ TechMask; rest != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(names, ",")
}

// MarshalText encodes the technology names
func (t Tech) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a comma separated list of technology names
func (t *Tech) UnmarshalText(b []byte) error {
	*t = 0
	for _, name := range strings.Split(string(b), ",") {
		name = strings.TrimSpace(name)
		if name == "" || name == "none" {
			continue
		}
		one, err := ParseTech(name)
		if err != nil {
			return err
		}
		*t |= one
	}
	return nil
}

// Best returns the fastest single technology in the map
func (t Tech) Best() Tech {
	for _, one := range techOrder {
		if t&one != 0 {
			return one
		}
	}
	return 0
}

// Single reports whether exactly one technology is set
func (t Tech) Single() bool {
	return bits.OnesCount32(uint32(t&TechMask)) == 1
}

// SpeedGbps returns link speed of a single technology
func (t Tech) SpeedGbps() uint32 {
	switch t.Best() {
	case TechCK400G:
		return 400
	case TechCK200G, TechBS200G:
		return 200
	case TechCK100G, TechCD100G, TechBJ100G:
		return 100
	case TechCD50G:
		return 50
	}
	return 0
}

// Lanes returns number of serdes lanes a single technology occupies
func (t Tech) Lanes() int {
	switch t.Best() {
	case TechCK400G, TechBS200G, TechBJ100G:
		return 4
	case TechCK200G, TechCD100G:
		return 2
	case TechCK100G, TechCD50G:
		return 1
	}
	return 0
}

// PAM4 reports whether the technology uses PAM4 signalling
func (t Tech) PAM4() bool {
	b := t.Best()
	return b != 0 && b != TechBJ100G
}

// FEC is a bitmap of supported FEC types
type FEC uint32

// FEC types
const (
	FECRS   FEC = 1 << 0
	FECRSLL FEC = 1 << 1
)

func (f FEC) String() string {
	switch {
	case f&FECRS != 0 && f&FECRSLL != 0:
		return "rs,rs_ll"
	case f&FECRS != 0:
		return "rs"
	case f&FECRSLL != 0:
		return "rs_ll"
	}
	return "none"
}

// MarshalText encodes the FEC names
func (f FEC) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText parses a comma separated list of FEC names
func (f *FEC) UnmarshalText(b []byte) error {
	*f = 0
	for _, name := range strings.Split(string(b), ",") {
		switch strings.TrimSpace(name) {
		case "", "none":
		case "rs":
			*f |= FECRS
		case "rs_ll":
			*f |= FECRSLL
		default:
			return fmt.Errorf("unknown fec %q", name)
		}
	}
	return nil
}

// Pause is a bitmap of pause capabilities
type Pause uint32

// Pause types
const (
	PauseSym  Pause = 1 << 0
	PauseAsym Pause = 1 << 1
)

// HPE is a bitmap of vendor specific link features
type HPE uint32

// HPE features
const (
	HPELLR       HPE = 1 << 0
	HPEC1        HPE = 1 << 4
	HPEC2        HPE = 1 << 5
	HPEC3        HPE = 1 << 6
	HPER1        HPE = 1 << 8
	HPER2        HPE = 1 << 9
	HPER3        HPE = 1 << 10
	HPEPCAL      HPE = 1 << 16
	HPEPrecoding HPE = 1 << 17
	HPELinkTrain HPE = 1 << 18
)

// Has reports whether all bits of f are set
func (h HPE) Has(f HPE) bool {
	return h&f == f
}

// Caps are link capabilities as reported by autonegotiation or configuration
type Caps struct {
	Tech  Tech  `yaml:"tech" json:"tech"`
	FEC   FEC   `yaml:"fec" json:"fec"`
	Pause Pause `yaml:"pause" json:"pause"`
	HPE   HPE   `yaml:"hpe" json:"hpe"`
}

// Furcation describes how a port group is split into links
type Furcation uint8

// Furcations
const (
	FurcationX1 Furcation = 1
	FurcationX2 Furcation = 2
	FurcationX4 Furcation = 4
)

// Links returns number of links in a port group
func (f Furcation) Links() int {
	return int(f)
}

// LaneMap returns asic lanes (bits 0..3) used by link number n
func (f Furcation) LaneMap(n int) uint8 {
	switch f {
	case FurcationX1:
		return 0x0f
	case FurcationX2:
		return 0x03 << (uint(n) * 2)
	case FurcationX4:
		return 1 << uint(n)
	}
	return 0
}
