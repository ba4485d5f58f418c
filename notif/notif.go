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

/*
Package notif implements the per link group notification channel.

Producers enqueue messages from any goroutine. A single dispatcher per group
delivers them in FIFO order to every registration whose type mask matches.
*/
package notif

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Type is a notification type bit
type Type uint32

// Notification types
const (
	LinkUp        Type = 1 << 1
	LinkUpFail    Type = 1 << 2
	LinkDown      Type = 1 << 3
	LinkAsyncDown Type = 1 << 4
	LinkError     Type = 1 << 5
	LinkUCWWarn   Type = 1 << 6
	LinkCCWWarn   Type = 1 << 7
	LLRSetup      Type = 1 << 8
	LLRSetupTO    Type = 1 << 9
	LLRRunning    Type = 1 << 10
	LLRStartTO    Type = 1 << 11
	LLRCanceled   Type = 1 << 12
	LLRError      Type = 1 << 13
	MediaPresent  Type = 1 << 14
	MediaAbsent   Type = 1 << 15
	MediaError    Type = 1 << 16
	ANData        Type = 1 << 17
	ANTimeout     Type = 1 << 18
	ANError       Type = 1 << 19
	LaneDegrade   Type = 1 << 20
	MediaHighTemp Type = 1 << 21
)

// Type masks
const (
	TypeAll   = ^Type(0)
	TypeLink  = LinkUp | LinkUpFail | LinkDown | LinkAsyncDown | LinkError | LinkUCWWarn | LinkCCWWarn
	TypeLLR   = LLRSetup | LLRSetupTO | LLRRunning | LLRStartTO | LLRCanceled | LLRError
	TypeMedia = MediaPresent | MediaAbsent | MediaError | MediaHighTemp
	TypeAN    = ANData | ANTimeout | ANError
)

// NoLink is the link number of group wide messages
const NoLink = 0xFF

var typeNames = map[Type]string{
	LinkUp:        "link-up",
	LinkUpFail:    "link-up-fail",
	LinkDown:      "link-down",
	LinkAsyncDown: "link-async-down",
	LinkError:     "link-error",
	LinkUCWWarn:   "link-ucw-warn",
	LinkCCWWarn:   "link-ccw-warn",
	LLRSetup:      "llr-setup",
	LLRSetupTO:    "llr-setup-timeout",
	LLRRunning:    "llr-running",
	LLRStartTO:    "llr-start-timeout",
	LLRCanceled:   "llr-canceled",
	LLRError:      "llr-error",
	MediaPresent:  "media-present",
	MediaAbsent:   "media-not-present",
	MediaError:    "media-error",
	ANData:        "an-data",
	ANTimeout:     "an-timeout",
	ANError:       "an-error",
	LaneDegrade:   "lane-degrade",
	MediaHighTemp: "media-high-temp",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	var parts []string
	for bit := Type(1); bit != 0; bit <<= 1 {
		if t&bit != 0 {
			if s, ok := typeNames[bit]; ok {
				parts = append(parts, s)
			} else {
				parts = append(parts, fmt.Sprintf("0x%x", uint32(bit)))
			}
		}
	}
	if len(parts) == 0 {
		return "invalid"
	}
	return strings.Join(parts, "|")
}

// MarshalText implements encoding.TextMarshaler
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Errors
var (
	ErrFull    = errors.New("no space")
	ErrBusy    = errors.New("dispatch in progress")
	ErrClosed  = errors.New("channel closed")
	ErrInvalid = errors.New("invalid registration")
)

// Limits of a channel
const (
	FIFOSize         = 64
	MaxRegistrations = 16
	regTries         = 10
	regWait          = 20 * time.Millisecond
)

// Message is one immutable notification
type Message struct {
	Dev       uint8       `json:"dev"`
	Group     uint8       `json:"group"`
	Link      uint8       `json:"link"`
	Type      Type        `json:"type"`
	Info      interface{} `json:"info,omitempty"`
	InfoMap   uint64      `json:"info_map"`
	Timestamp time.Time   `json:"timestamp"`
}

// Callback receives matching messages on the dispatcher goroutine
type Callback func(tag interface{}, msg Message)

// ID identifies a registration
type ID int

type entry struct {
	callback Callback
	tag      interface{}
	types    Type
}

// Channel is the notification FIFO of one link group
type Channel struct {
	dev   uint8
	group uint8
	now   func() time.Time

	regTries int
	regWait  time.Duration

	mux     sync.Mutex
	entries [MaxRegistrations]entry
	fifo    []Message
	sending bool
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// NewChannel starts the dispatcher of a link group
func NewChannel(dev, group uint8) *Channel {
	c := &Channel{
		dev:      dev,
		group:    group,
		now:      time.Now,
		regTries: regTries,
		regWait:  regWait,
		fifo:     make([]Message, 0, FIFOSize),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go c.dispatch()
	return c
}

func (c *Channel) isSending() bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.sending
}

// waitIdle blocks while the dispatcher drains, up to regTries * regWait
func (c *Channel) waitIdle() error {
	for i := 0; c.isSending(); i++ {
		if i >= c.regTries {
			return fmt.Errorf("lgrp %d/%d: registration timed out: %w", c.dev, c.group, ErrBusy)
		}
		time.Sleep(c.regWait)
	}
	return nil
}

// Register adds a callback for every type in types
func (c *Channel) Register(cb Callback, types Type, tag interface{}) (ID, error) {
	if cb == nil || types == 0 {
		return -1, ErrInvalid
	}
	if err := c.waitIdle(); err != nil {
		return -1, err
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.closed {
		return -1, ErrClosed
	}
	if c.sending {
		return -1, fmt.Errorf("lgrp %d/%d: notif list is currently being used: %w", c.dev, c.group, ErrBusy)
	}
	for i := range c.entries {
		if c.entries[i].types == 0 {
			c.entries[i] = entry{callback: cb, tag: tag, types: types}
			log.Debugf("lgrp %d/%d: notif callback reg (types = %s, id = %d)", c.dev, c.group, types, i)
			return ID(i), nil
		}
	}
	return -1, fmt.Errorf("lgrp %d/%d: registration list is full: %w", c.dev, c.group, ErrFull)
}

// Unregister removes a registration
func (c *Channel) Unregister(id ID) error {
	if id < 0 || int(id) >= MaxRegistrations {
		return ErrInvalid
	}
	if err := c.waitIdle(); err != nil {
		return err
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.sending {
		return fmt.Errorf("lgrp %d/%d: notif list is currently being used: %w", c.dev, c.group, ErrBusy)
	}
	if c.entries[id].types == 0 {
		return ErrInvalid
	}
	log.Debugf("lgrp %d/%d: notif callback unreg (types = %s, id = %d)", c.dev, c.group, c.entries[id].types, id)
	c.entries[id] = entry{}
	return nil
}

// Enqueue queues a message for link and wakes the dispatcher
func (c *Channel) Enqueue(link uint8, t Type, info interface{}, infoMap uint64) error {
	msg := Message{
		Dev:       c.dev,
		Group:     c.group,
		Link:      link,
		Type:      t,
		Info:      info,
		InfoMap:   infoMap,
		Timestamp: c.now(),
	}
	c.mux.Lock()
	if c.closed {
		c.mux.Unlock()
		return ErrClosed
	}
	if len(c.fifo) >= FIFOSize {
		c.mux.Unlock()
		log.Errorf("lgrp %d/%d: notification fifo is full, dropping %s for link %d", c.dev, c.group, t, link)
		return fmt.Errorf("lgrp %d/%d: %w", c.dev, c.group, ErrFull)
	}
	c.fifo = append(c.fifo, msg)
	c.mux.Unlock()
	log.Debugf("lgrp %d/%d: notif enqueue (link = %d, type = %s)", c.dev, c.group, link, t)

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of queued messages
func (c *Channel) Pending() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return len(c.fifo)
}

// pop takes the oldest message, flagging the list as in use while any remains
func (c *Channel) pop() (Message, []entry, bool) {
	c.mux.Lock()
	defer c.mux.Unlock()
	if len(c.fifo) == 0 {
		c.sending = false
		return Message{}, nil, false
	}
	c.sending = true
	msg := c.fifo[0]
	c.fifo = c.fifo[1:]
	var matched []entry
	for _, e := range c.entries {
		if e.types&msg.Type != 0 {
			matched = append(matched, e)
		}
	}
	return msg, matched, true
}

func (c *Channel) dispatch() {
	defer close(c.done)
	for {
		for {
			msg, matched, ok := c.pop()
			if !ok {
				break
			}
			for _, e := range matched {
				e.callback(e.tag, msg)
			}
		}
		c.mux.Lock()
		closed := c.closed
		c.mux.Unlock()
		if closed {
			return
		}
		<-c.wake
	}
}

// Close delivers queued messages and stops the dispatcher. Further enqueues fail with ErrClosed.
func (c *Channel) Close() {
	c.mux.Lock()
	if c.closed {
		c.mux.Unlock()
		<-c.done
		return
	}
	c.closed = true
	c.mux.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
	<-c.done
}
