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

package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// counter key prefixes
const (
	LinkPrefix    = "link."
	NotifPrefix   = "notif."
	ProcessPrefix = "process."
	RuntimePrefix = "runtime."
)

// LinkStatus is the monitoring summary of one link
type LinkStatus struct {
	ID          string  `json:"id"`
	State       string  `json:"state"`
	LaneMap     uint8   `json:"lane_map"`
	Tech        string  `json:"tech"`
	FEC         string  `json:"fec"`
	SpeedGbps   uint32  `json:"speed_gbps"`
	Tries       int     `json:"tries"`
	UpFailCause string  `json:"up_fail_cause"`
	DownCause   string  `json:"down_cause"`
	InfoMap     string  `json:"info_map"`
	LastError   string  `json:"last_error,omitempty"`
	UCWBER      float64 `json:"ucw_ber"`
	CCWBER      float64 `json:"ccw_ber"`
	LLR         string  `json:"llr,omitempty"`
	UpTime      int64   `json:"up_time"`
}

// LinkStatuses is a list of LinkStatus ordered by link identity
type LinkStatuses []*LinkStatus

// Up returns the number of links that are up
func (s LinkStatuses) Up() int {
	n := 0
	for _, l := range s {
		if l.State == "up" {
			n++
		}
	}
	return n
}

// Event is a notification as reported by the events endpoint
type Event struct {
	Link      string          `json:"link"`
	Type      string          `json:"type"`
	InfoMap   uint64          `json:"info_map"`
	Info      json.RawMessage `json:"info,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Counters is various counters exported by linkmgrd
type Counters map[string]int64

// Link returns the counters of one link without the link prefix
func (c Counters) Link(id string) map[string]int64 {
	res := map[string]int64{}
	prefix := LinkPrefix + LinkKey(id) + "."
	for k, v := range c {
		if strings.HasPrefix(k, prefix) {
			res[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return res
}

// SysStats return sys stats from counters
func (c Counters) SysStats() map[string]int64 {
	res := map[string]int64{}
	for k, v := range c {
		if strings.HasPrefix(k, ProcessPrefix) || strings.HasPrefix(k, RuntimePrefix) {
			res[k] = v
		}
	}
	return res
}

// LinkKey turns link identity d/g/n into a counter key element
func LinkKey(id string) string {
	return strings.ReplaceAll(id, "/", "_")
}

func get(url string, v interface{}) error {
	c := http.Client{
		Timeout: time.Second * 2,
	}

	resp, err := c.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s: %s", url, resp.Status, strings.TrimSpace(string(b)))
	}
	return json.Unmarshal(b, v)
}

// FetchLinks returns the status of every link fetched from the url
func FetchLinks(url string) (LinkStatuses, error) {
	var s LinkStatuses
	err := get(url, &s)
	return s, err
}

// FetchCounters returns counters map fetched from the url
func FetchCounters(url string) (Counters, error) {
	counters := make(Counters)
	err := get(fmt.Sprintf("%s/counters", url), &counters)
	return counters, err
}

// FetchLink returns the full description of one link as generic JSON
func FetchLink(url, id string) (map[string]interface{}, error) {
	desc := map[string]interface{}{}
	err := get(fmt.Sprintf("%s/links/%s", url, LinkKey(id)), &desc)
	return desc, err
}

// FetchEvents returns recent notifications
func FetchEvents(url string) ([]Event, error) {
	var ev []Event
	err := get(fmt.Sprintf("%s/events", url), &ev)
	return ev, err
}

// Control operations
const (
	OpUp    = "up"
	OpDown  = "down"
	OpReset = "reset"
)

// Control runs op on link id
func Control(url, id, op string) error {
	c := http.Client{
		Timeout: time.Second * 10,
	}
	resp, err := c.Post(fmt.Sprintf("%s/links/%s/%s", url, LinkKey(id), op), "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s: %s", op, id, resp.Status, strings.TrimSpace(string(b)))
	}
	return nil
}
