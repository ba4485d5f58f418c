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
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/facebook/linkmgr/link"
	"github.com/facebook/linkmgr/notif"
)

type closeCounter int

func (c *closeCounter) Close() error {
	*c++
	return nil
}

func newTestNetdev(t *testing.T) (*MockNetdevSetter, *Netdev, *closeCounter) {
	ctrl := gomock.NewController(t)
	conn := NewMockNetdevSetter(ctrl)
	closer := new(closeCounter)
	n := NewNetdev(conn, closer, map[link.ID]string{
		{Dev: 0, Group: 1, Num: 0}: "eth1",
		{Dev: 0, Group: 1, Num: 1}: "eth2",
	})
	n.lookup = func(name string) (*net.Interface, error) {
		if name == "eth2" {
			return nil, errors.New("no such network interface")
		}
		return &net.Interface{Name: name, Index: 3}, nil
	}
	return conn, n, closer
}

func TestNetdevNotify(t *testing.T) {
	conn, n, closer := newTestNetdev(t)
	eth1 := &net.Interface{Name: "eth1", Index: 3}

	gomock.InOrder(
		conn.EXPECT().LinkUp(eth1).Return(nil),
		conn.EXPECT().LinkDown(eth1).Return(nil),
		conn.EXPECT().LinkDown(eth1).Return(errors.New("operation not permitted")),
	)
	n.Notify(nil, notif.Message{Group: 1, Link: 0, Type: notif.LinkUp})
	n.Notify(nil, notif.Message{Group: 1, Link: 0, Type: notif.LinkAsyncDown})
	n.Notify(nil, notif.Message{Group: 1, Link: 0, Type: notif.LinkUpFail})

	// no netdev configured
	n.Notify(nil, notif.Message{Group: 2, Link: 0, Type: notif.LinkUp})
	// lookup fails
	n.Notify(nil, notif.Message{Group: 1, Link: 1, Type: notif.LinkUp})

	require.NoError(t, n.Close())
	require.Equal(t, 1, int(*closer))
}

func TestNetdevCloseWithoutConn(t *testing.T) {
	n := NewNetdev(nil, nil, nil)
	require.NoError(t, n.Close())
}
