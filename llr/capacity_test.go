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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facebook/linkmgr/caps"
)

func TestCalculatedLoopTime(t *testing.T) {
	require.Equal(t, uint64(240), CalculatedLoopTime(100))
	require.Equal(t, uint64(232), CalculatedLoopTime(0))
}

func TestNewSettings(t *testing.T) {
	cfg := DefaultConfig()
	s, err := NewSettings(cfg, Group{Tech: caps.TechCK400G, Furcation: caps.FurcationX1})
	require.NoError(t, err)
	require.Equal(t, uint64(50), s.BytesPerNs)
	require.Equal(t, uint64(0x800), s.MaxCapData)
	require.Equal(t, ModeOn, s.Mode)
	require.Equal(t, uint64(1), s.Size)

	s, err = NewSettings(cfg, Group{Tech: caps.TechBJ100G, Furcation: caps.FurcationX4})
	require.NoError(t, err)
	require.Equal(t, uint64(13), s.BytesPerNs)
	require.Equal(t, uint64(0x200), s.MaxCapSeq)

	// fabric links always size for a single link
	s, err = NewSettings(cfg, Group{Tech: caps.TechBJ100G, Furcation: caps.FurcationX4, Fabric: true})
	require.NoError(t, err)
	require.Equal(t, uint64(0x800), s.MaxCapSeq)

	_, err = NewSettings(cfg, Group{Tech: caps.TechCK400G | caps.TechBJ100G, Furcation: caps.FurcationX1})
	require.ErrorIs(t, err, ErrConfig)
	_, err = NewSettings(cfg, Group{Furcation: caps.FurcationX1})
	require.ErrorIs(t, err, ErrConfig)
}

func TestCapacity(t *testing.T) {
	s, err := NewSettings(DefaultConfig(), Group{Tech: caps.TechCK400G, Furcation: caps.FurcationX1})
	require.NoError(t, err)
	data, seq := s.Capacity(240)
	require.Equal(t, uint64(476), data)
	require.Equal(t, uint64(951), seq)

	s.MaxCapData, s.MaxCapSeq = 0x200, 0x200
	data, seq = s.Capacity(240)
	require.Equal(t, uint64(476), data)
	require.Equal(t, uint64(0x200), seq)

	data, seq = s.Capacity(100000)
	require.Equal(t, uint64(0x200), data)
	require.Equal(t, uint64(0x200), seq)
}

func TestNewLoopTime(t *testing.T) {
	require.Equal(t, LoopTime{}, NewLoopTime(nil))

	lt := NewLoopTime([]uint64{100, 300, 200})
	require.Equal(t, uint64(100), lt.Min)
	require.Equal(t, uint64(300), lt.Max)
	require.Equal(t, uint64(200), lt.Average)
	require.Greater(t, lt.Stddev, 0.0)

	lt = NewLoopTime([]uint64{5, 5, 6})
	require.Equal(t, uint64(6), lt.Average)

	lt = NewLoopTime([]uint64{7, 7, 7})
	require.Equal(t, uint64(7), lt.Average)
	require.Equal(t, 0.0, lt.Stddev)
}

func TestLinkDownBehavior(t *testing.T) {
	b, err := ParseLinkDownBehavior("block")
	require.NoError(t, err)
	require.Equal(t, LinkDownBlock, b)
	require.Equal(t, "block", b.String())
	_, err = ParseLinkDownBehavior("drop")
	require.Error(t, err)

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	cfg.LinkDownBehavior = LinkDownBlock | LinkDownDiscard
	require.ErrorIs(t, cfg.Validate(), ErrConfig)
	cfg = DefaultConfig()
	cfg.Mode = ModeOff
	require.ErrorIs(t, cfg.Validate(), ErrConfig)
	cfg = DefaultConfig()
	cfg.StartTimeout = 0
	require.ErrorIs(t, cfg.Validate(), ErrConfig)
	cfg = DefaultConfig()
	cfg.Size = 0
	require.ErrorIs(t, cfg.Validate(), ErrConfig)
	cfg.Size = 4
	require.ErrorIs(t, cfg.Validate(), ErrConfig)
	cfg.Size = 3
	require.NoError(t, cfg.Validate())
}
