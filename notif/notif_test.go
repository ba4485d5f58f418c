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

package notif

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sink struct {
	sync.Mutex
	msgs []Message
	tags []interface{}
}

func (s *sink) cb(tag interface{}, msg Message) {
	s.Lock()
	defer s.Unlock()
	s.msgs = append(s.msgs, msg)
	s.tags = append(s.tags, tag)
}

func (s *sink) types() []Type {
	s.Lock()
	defer s.Unlock()
	out := make([]Type, 0, len(s.msgs))
	for _, m := range s.msgs {
		out = append(out, m.Type)
	}
	return out
}

func TestTypeString(t *testing.T) {
	require.Equal(t, "link-up", LinkUp.String())
	require.Equal(t, "link-up|link-async-down", (LinkUp | LinkAsyncDown).String())
	require.Equal(t, "invalid", Type(0).String())
	require.Equal(t, "0x1|link-up", (1 | LinkUp).String())
	require.Equal(t, "link-ccw-warn", LinkCCWWarn.String())
	require.Equal(t, Type(0xFE), TypeLink)
}

func TestChannelOrderAndFilter(t *testing.T) {
	c := NewChannel(0, 3)
	defer c.Close()
	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }

	var links, llr sink
	_, err := c.Register(links.cb, TypeLink, "links")
	require.NoError(t, err)
	_, err = c.Register(llr.cb, TypeLLR, "llr")
	require.NoError(t, err)

	require.NoError(t, c.Enqueue(1, LinkUp, "up", 0x2))
	require.NoError(t, c.Enqueue(1, LLRRunning, nil, 0))
	require.NoError(t, c.Enqueue(1, LinkAsyncDown, nil, 0x100))
	require.NoError(t, c.Enqueue(2, LinkUpFail, nil, 0))
	require.NoError(t, c.Enqueue(NoLink, MediaPresent, nil, 0))

	require.Eventually(t, func() bool { return len(links.types()) == 3 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return len(llr.types()) == 1 }, time.Second, time.Millisecond)
	require.Equal(t, []Type{LinkUp, LinkAsyncDown, LinkUpFail}, links.types())
	require.Equal(t, []Type{LLRRunning}, llr.types())

	links.Lock()
	defer links.Unlock()
	require.Equal(t, Message{Dev: 0, Group: 3, Link: 1, Type: LinkUp, Info: "up", InfoMap: 0x2, Timestamp: now}, links.msgs[0])
	require.Equal(t, "links", links.tags[0])
	require.Equal(t, uint8(2), links.msgs[2].Link)
}

func TestChannelUnregister(t *testing.T) {
	c := NewChannel(0, 0)
	defer c.Close()
	var s sink
	id, err := c.Register(s.cb, TypeAll, nil)
	require.NoError(t, err)
	require.NoError(t, c.Unregister(id))
	require.ErrorIs(t, c.Unregister(id), ErrInvalid)
	require.ErrorIs(t, c.Unregister(MaxRegistrations), ErrInvalid)

	require.NoError(t, c.Enqueue(0, LinkUp, nil, 0))
	require.Eventually(t, func() bool { return c.Pending() == 0 && !c.isSending() }, time.Second, time.Millisecond)
	require.Empty(t, s.types())
}

func TestChannelRegisterInvalid(t *testing.T) {
	c := NewChannel(0, 0)
	defer c.Close()
	_, err := c.Register(nil, TypeAll, nil)
	require.ErrorIs(t, err, ErrInvalid)
	var s sink
	_, err = c.Register(s.cb, 0, nil)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestChannelRegistrationFull(t *testing.T) {
	c := NewChannel(0, 0)
	defer c.Close()
	var s sink
	for i := 0; i < MaxRegistrations; i++ {
		id, err := c.Register(s.cb, LinkUp, nil)
		require.NoError(t, err)
		require.Equal(t, ID(i), id)
	}
	_, err := c.Register(s.cb, LinkUp, nil)
	require.ErrorIs(t, err, ErrFull)

	// freed slots are reused
	require.NoError(t, c.Unregister(5))
	id, err := c.Register(s.cb, LinkDown, nil)
	require.NoError(t, err)
	require.Equal(t, ID(5), id)
}

func TestChannelBusyAndFull(t *testing.T) {
	c := NewChannel(0, 0)
	c.regTries = 2
	c.regWait = time.Millisecond

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	blocker := func(interface{}, Message) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	}
	_, err := c.Register(blocker, LinkUp, nil)
	require.NoError(t, err)

	require.NoError(t, c.Enqueue(0, LinkUp, nil, 0))
	<-entered

	// dispatcher is stuck in the callback, registration gives up
	var s sink
	_, err = c.Register(s.cb, LinkUp, nil)
	require.ErrorIs(t, err, ErrBusy)

	for i := 0; i < FIFOSize; i++ {
		require.NoError(t, c.Enqueue(0, LinkDown, nil, 0))
	}
	require.ErrorIs(t, c.Enqueue(0, LinkDown, nil, 0), ErrFull)
	require.Equal(t, FIFOSize, c.Pending())

	close(release)
	require.Eventually(t, func() bool { return c.Pending() == 0 }, time.Second, time.Millisecond)
	c.Close()
	require.ErrorIs(t, c.Enqueue(0, LinkUp, nil, 0), ErrClosed)
	_, err = c.Register(s.cb, LinkUp, nil)
	require.ErrorIs(t, err, ErrClosed)
	c.Close()
}

func TestChannelCloseDrains(t *testing.T) {
	c := NewChannel(1, 2)
	var s sink
	_, err := c.Register(s.cb, TypeAll, nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, c.Enqueue(uint8(i), LinkUp, nil, 0))
	}
	c.Close()
	require.Len(t, s.types(), 10)
}
