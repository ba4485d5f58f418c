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

	"github.com/go-ini/ini"
)

// LaneInfo is the jack wiring of one asic lane
type LaneInfo struct {
	TxSource uint8 `json:"tx_source"`
	RxSource uint8 `json:"rx_source"`
	TxInvert bool  `json:"tx_invert"`
	RxInvert bool  `json:"rx_invert"`
}

// Swizzle maps asic lanes (0..3) of a port to serdes lanes (0..7) and back
type Swizzle struct {
	Port  uint8
	Lanes [MaxAsicLanes]LaneInfo
}

// IdentitySwizzle returns an unswizzled table for a port
func IdentitySwizzle(port uint8) Swizzle {
	s := Swizzle{Port: port}
	for i := range s.Lanes {
		s.Lanes[i] = LaneInfo{TxSource: uint8(i), RxSource: uint8(i)}
	}
	return s
}

func (s *Swizzle) offset() uint8 {
	return 4 * (s.Port & 1)
}

// Validate checks the table is a permutation of the port lanes in both directions
func (s *Swizzle) Validate() error {
	var tx, rx [MaxAsicLanes]bool
	for i, l := range s.Lanes {
		if l.TxSource >= MaxAsicLanes || l.RxSource >= MaxAsicLanes {
			return fmt.Errorf("asic lane %d: source out of range (tx %d, rx %d)", i, l.TxSource, l.RxSource)
		}
		if tx[l.TxSource] || rx[l.RxSource] {
			return fmt.Errorf("asic lane %d: duplicate source", i)
		}
		tx[l.TxSource] = true
		rx[l.RxSource] = true
	}
	return nil
}

// TxSerdes returns serdes lane driven by asic TX lane
func (s *Swizzle) TxSerdes(asic uint8) (uint8, error) {
	if asic >= MaxAsicLanes {
		return 0, fmt.Errorf("asic lane %d: %w", asic, ErrNoLane)
	}
	return s.Lanes[asic].TxSource + s.offset(), nil
}

// RxSerdes returns serdes lane feeding asic RX lane
func (s *Swizzle) RxSerdes(asic uint8) (uint8, error) {
	if asic >= MaxAsicLanes {
		return 0, fmt.Errorf("asic lane %d: %w", asic, ErrNoLane)
	}
	return s.Lanes[asic].RxSource + s.offset(), nil
}

// TxAsic returns asic lane for a serdes TX lane.
// A miss is an error, there is no default lane.
func (s *Swizzle) TxAsic(serdesLane uint8) (uint8, error) {
	for i, l := range s.Lanes {
		if l.TxSource+s.offset() == serdesLane {
			return uint8(i), nil
		}
	}
	return 0, fmt.Errorf("tx serdes lane %d: %w", serdesLane, ErrNoLane)
}

// RxAsic returns asic lane for a serdes RX lane
func (s *Swizzle) RxAsic(serdesLane uint8) (uint8, error) {
	for i, l := range s.Lanes {
		if l.RxSource+s.offset() == serdesLane {
			return uint8(i), nil
		}
	}
	return 0, fmt.Errorf("rx serdes lane %d: %w", serdesLane, ErrNoLane)
}

// LoadSwizzle reads a swizzle table from an ini file.
// Every asic lane has its own section:
//
//	[lane0]
//	tx_source = 2
//	rx_source = 1
//	tx_invert = true
func LoadSwizzle(path string, port uint8) (Swizzle, error) {
	s := IdentitySwizzle(port)
	f, err := ini.Load(path)
	if err != nil {
		return s, fmt.Errorf("loading swizzle %s: %w", path, err)
	}
	for i := range s.Lanes {
		name := fmt.Sprintf("lane%d", i)
		if !f.HasSection(name) {
			continue
		}
		sec := f.Section(name)
		tx, err := sec.Key("tx_source").Uint()
		if err != nil && sec.HasKey("tx_source") {
			return s, fmt.Errorf("%s tx_source: %w", name, err)
		}
		if sec.HasKey("tx_source") {
			s.Lanes[i].TxSource = uint8(tx)
		}
		rx, err := sec.Key("rx_source").Uint()
		if err != nil && sec.HasKey("rx_source") {
			return s, fmt.Errorf("%s rx_source: %w", name, err)
		}
		if sec.HasKey("rx_source") {
			s.Lanes[i].RxSource = uint8(rx)
		}
		s.Lanes[i].TxInvert = sec.Key("tx_invert").MustBool(false)
		s.Lanes[i].RxInvert = sec.Key("rx_invert").MustBool(false)
	}
	return s, s.Validate()
}
