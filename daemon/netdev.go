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

package daemon

import (
	"fmt"
	"io"
	"net"

	"github.com/jsimonetti/rtnetlink/rtnl"
	log "github.com/sirupsen/logrus"

	"github.com/facebook/linkmgr/link"
	"github.com/facebook/linkmgr/notif"
)

//go:generate mockgen -source=netdev.go -destination=mock_netdev.go -package=daemon

// NetdevSetter changes the administrative state of kernel interfaces
type NetdevSetter interface {
	LinkUp(ifc *net.Interface) error
	LinkDown(ifc *net.Interface) error
}

// Netdev keeps kernel interfaces up while their links are up
type Netdev struct {
	conn   NetdevSetter
	closer io.Closer
	names  map[link.ID]string
	lookup func(name string) (*net.Interface, error)
}

// NetdevNames maps links to the kernel interfaces configured for them
func (c *Config) NetdevNames() map[link.ID]string {
	names := map[link.ID]string{}
	for _, g := range c.Groups {
		for n, name := range g.Netdevs {
			if name != "" {
				names[link.ID{Dev: g.Dev, Group: g.Num, Num: uint8(n)}] = name
			}
		}
	}
	return names
}

// DialNetdev opens a netlink connection
func DialNetdev(names map[link.ID]string) (*Netdev, error) {
	conn, err := rtnl.Dial(nil)
	if err != nil {
		return nil, fmt.Errorf("can't establish netlink connection: %w", err)
	}
	return NewNetdev(conn, conn, names), nil
}

// NewNetdev returns Netdev on top of an existing connection
func NewNetdev(conn NetdevSetter, closer io.Closer, names map[link.ID]string) *Netdev {
	return &Netdev{conn: conn, closer: closer, names: names, lookup: net.InterfaceByName}
}

// Notify implements notif.Callback
func (n *Netdev) Notify(_ interface{}, msg notif.Message) {
	name, ok := n.names[link.ID{Dev: msg.Dev, Group: msg.Group, Num: msg.Link}]
	if !ok {
		return
	}
	if err := n.set(name, msg.Type == notif.LinkUp); err != nil {
		log.Errorf("netdev %s: %v", name, err)
	}
}

func (n *Netdev) set(name string, up bool) error {
	ifc, err := n.lookup(name)
	if err != nil {
		return err
	}
	if up {
		log.Debugf("netdev %s: up", name)
		return n.conn.LinkUp(ifc)
	}
	log.Debugf("netdev %s: down", name)
	return n.conn.LinkDown(ifc)
}

// Close closes the netlink connection
func (n *Netdev) Close() error {
	if n.closer == nil {
		return nil
	}
	return n.closer.Close()
}
