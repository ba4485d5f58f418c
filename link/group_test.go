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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facebook/linkmgr/caps"
)

func plainBuild(id ID, laneMap uint8, ntf Notifier) (*Link, error) {
	return New(id, laneMap, Hardware{}, ntf), nil
}

func TestNewGroupFurcation(t *testing.T) {
	g, err := NewGroup(0, 3, caps.FurcationX2, plainBuild)
	require.NoError(t, err)
	defer g.Close()
	require.Equal(t, "group 0/3", g.String())
	links := g.Links()
	require.Len(t, links, 2)
	require.Equal(t, ID{Dev: 0, Group: 3, Num: 0}, links[0].ID())
	require.Equal(t, ID{Dev: 0, Group: 3, Num: 1}, links[1].ID())
	require.Equal(t, caps.FurcationX2.LaneMap(0), links[0].LaneMap())
	require.Equal(t, caps.FurcationX2.LaneMap(1), links[1].LaneMap())
	require.Zero(t, links[0].LaneMap()&links[1].LaneMap())
	require.NotNil(t, g.Notifications())

	l, err := g.Link(1)
	require.NoError(t, err)
	require.Same(t, links[1], l)
	_, err = g.Link(2)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNewGroupErrors(t *testing.T) {
	_, err := NewGroup(0, 0, caps.Furcation(7), plainBuild)
	require.ErrorIs(t, err, ErrConfig)

	errBuild := errors.New("no lanes")
	_, err = NewGroup(0, 0, caps.FurcationX4, func(id ID, laneMap uint8, ntf Notifier) (*Link, error) {
		if id.Num == 2 {
			return nil, errBuild
		}
		return plainBuild(id, laneMap, ntf)
	})
	require.ErrorIs(t, err, errBuild)
}

func TestGroupClose(t *testing.T) {
	g, err := NewGroup(1, 0, caps.FurcationX1, plainBuild)
	require.NoError(t, err)
	require.NoError(t, g.Close())
	require.Equal(t, StateInvalid, g.Links()[0].State())
}

func TestManager(t *testing.T) {
	m := NewManager()
	for _, k := range []struct {
		dev, num uint8
		f caps.Furcation
	}{{1, 0, caps.FurcationX1}, {0, 1, caps.FurcationX2}, {0, 0, caps.FurcationX1}} {
		g, err := NewGroup(k.dev, k.num, k.f, plainBuild)
		require.NoError(t, err)
		require.NoError(t, m.AddGroup(g))
	}
	dup, err := NewGroup(0, 0, caps.FurcationX1, plainBuild)
	require.NoError(t, err)
	require.ErrorIs(t, m.AddGroup(dup), ErrExists)
	require.NoError(t, dup.Close())

	ids := []string{}
	for _, l := range m.Links() {
		ids = append(ids, l.ID().String())
	}
	require.Equal(t, []string{"0/0/0", "0/1/0", "0/1/1", "1/0/0"}, ids)

	groups := m.Groups()
	require.Len(t, groups, 3)
	require.Equal(t, "group 0/0", groups[0].String())
	require.Equal(t, "group 1/0", groups[2].String())

	l, err := m.Get(ID{Dev: 0, Group: 1, Num: 1})
	require.NoError(t, err)
	require.Equal(t, "link 0/1/1", l.String())
	_, err = m.Get(ID{Dev: 0, Group: 1, Num: 2})
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.DeleteGroup(0, 1))
	require.ErrorIs(t, m.DeleteGroup(0, 1), ErrNotFound)
	_, err = m.Group(0, 1)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(ID{Dev: 0, Group: 1, Num: 0})
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, StateInvalid, l.State())

	require.NoError(t, m.Close())
	require.Empty(t, m.Links())
	require.Empty(t, m.Groups())
}

func TestParseID(t *testing.T) {
	id, err := ParseID("1/2/3")
	require.NoError(t, err)
	require.Equal(t, ID{Dev: 1, Group: 2, Num: 3}, id)
	id, err = ParseID("0_7_1")
	require.NoError(t, err)
	require.Equal(t, ID{Group: 7, Num: 1}, id)
	require.Equal(t, "0/7/1", id.String())

	for _, bad := range []string{"", "1/2", "1/2/3/4", "a/b/c", "1/2/300"} {
		_, err := ParseID(bad)
		require.Error(t, err, bad)
	}
}
