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
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/facebook/linkmgr/caps"
	"github.com/facebook/linkmgr/notif"
)

// BuildFunc creates link num of a port group using the asic lanes of laneMap
type BuildFunc func(id ID, laneMap uint8, ntf Notifier) (*Link, error)

// Group is a port group: links sharing one serdes macro and one notification channel
type Group struct {
	dev       uint8
	num       uint8
	furcation caps.Furcation
	ntf       *notif.Channel
	links     []*Link
}

// NewGroup builds every link of a port group split by furcation
func NewGroup(dev, num uint8, f caps.Furcation, build BuildFunc) (*Group, error) {
	if f.Links() == 0 || f.LaneMap(0) == 0 {
		return nil, fmt.Errorf("group %d/%d: furcation %d: %w", dev, num, f, ErrConfig)
	}
	g := &Group{
		dev:       dev,
		num:       num,
		furcation: f,
		ntf:       notif.NewChannel(dev, num),
	}
	for n := 0; n < f.Links(); n++ {
		id := ID{Dev: dev, Group: num, Num: uint8(n)}
		l, err := build(id, f.LaneMap(n), g.ntf)
		if err != nil {
			g.ntf.Close()
			return nil, fmt.Errorf("group %d/%d: link %d: %w", dev, num, n, err)
		}
		g.links = append(g.links, l)
	}
	return g, nil
}

func (g *Group) String() string {
	return fmt.Sprintf("group %d/%d", g.dev, g.num)
}

// Dev returns device number
func (g *Group) Dev() uint8 {
	return g.dev
}

// Num returns port group number
func (g *Group) Num() uint8 {
	return g.num
}

// Furcation returns how the group is split
func (g *Group) Furcation() caps.Furcation {
	return g.furcation
}

// Notifications returns the notification channel of the group
func (g *Group) Notifications() *notif.Channel {
	return g.ntf
}

// Links returns links of the group ordered by number
func (g *Group) Links() []*Link {
	return append([]*Link(nil), g.links...)
}

// Link returns link num of the group
func (g *Group) Link(num uint8) (*Link, error) {
	if int(num) >= len(g.links) {
		return nil, fmt.Errorf("%s: link %d: %w", g, num, ErrNotFound)
	}
	return g.links[num], nil
}

// PollFaults checks fault status of every up link each interval until ctx is done
func (g *Group) PollFaults(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		for _, l := range g.links {
			if err := l.CheckFaults(); err != nil {
				log.Warningf("%s: %v", g, err)
			}
		}
	}
}

// Close deletes every link and closes the notification channel
func (g *Group) Close() error {
	var errs []error
	for _, l := range g.links {
		if err := l.Delete(); err != nil {
			errs = append(errs, err)
		}
	}
	g.ntf.Close()
	return errors.Join(errs...)
}

type groupKey struct {
	dev uint8
	num uint8
}

// Manager is the registry of port groups and their links
type Manager struct {
	mux    sync.RWMutex
	groups map[groupKey]*Group
	links  map[ID]*Link
}

// NewManager returns an empty registry
func NewManager() *Manager {
	return &Manager{
		groups: map[groupKey]*Group{},
		links:  map[ID]*Link{},
	}
}

// AddGroup registers a port group and its links
func (m *Manager) AddGroup(g *Group) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	k := groupKey{dev: g.dev, num: g.num}
	if _, ok := m.groups[k]; ok {
		return fmt.Errorf("%s: %w", g, ErrExists)
	}
	m.groups[k] = g
	for _, l := range g.links {
		m.links[l.ID()] = l
	}
	log.Debugf("%s registered (%d links)", g, len(g.links))
	return nil
}

// Group returns a registered port group
func (m *Manager) Group(dev, num uint8) (*Group, error) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	g, ok := m.groups[groupKey{dev: dev, num: num}]
	if !ok {
		return nil, fmt.Errorf("group %d/%d: %w", dev, num, ErrNotFound)
	}
	return g, nil
}

// Groups returns registered port groups ordered by device and number
func (m *Manager) Groups() []*Group {
	m.mux.RLock()
	groups := make([]*Group, 0, len(m.groups))
	for _, g := range m.groups {
		groups = append(groups, g)
	}
	m.mux.RUnlock()
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].dev != groups[j].dev {
			return groups[i].dev < groups[j].dev
		}
		return groups[i].num < groups[j].num
	})
	return groups
}

// Get returns a registered link
func (m *Manager) Get(id ID) (*Link, error) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	l, ok := m.links[id]
	if !ok {
		return nil, fmt.Errorf("link %s: %w", id, ErrNotFound)
	}
	return l, nil
}

// Links returns registered links ordered by identity
func (m *Manager) Links() []*Link {
	m.mux.RLock()
	links := make([]*Link, 0, len(m.links))
	for _, l := range m.links {
		links = append(links, l)
	}
	m.mux.RUnlock()
	sort.Slice(links, func(i, j int) bool {
		a, b := links[i].ID(), links[j].ID()
		if a.Dev != b.Dev {
			return a.Dev < b.Dev
		}
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Num < b.Num
	})
	return links
}

// DeleteGroup takes every link of a port group down and forgets it
func (m *Manager) DeleteGroup(dev, num uint8) error {
	m.mux.Lock()
	k := groupKey{dev: dev, num: num}
	g, ok := m.groups[k]
	if !ok {
		m.mux.Unlock()
		return fmt.Errorf("group %d/%d: %w", dev, num, ErrNotFound)
	}
	delete(m.groups, k)
	for _, l := range g.links {
		delete(m.links, l.ID())
	}
	m.mux.Unlock()
	return g.Close()
}

// Close deletes every registered port group
func (m *Manager) Close() error {
	var errs []error
	for _, g := range m.Groups() {
		if err := m.DeleteGroup(g.dev, g.num); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
