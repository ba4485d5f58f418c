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
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinkStatusesUp(t *testing.T) {
	s := LinkStatuses{{ID: "0/0/0", State: "up"}, {ID: "0/0/1", State: "starting"}, {ID: "0/1/0", State: "up"}}
	require.Equal(t, 2, s.Up())
}

func TestCounters(t *testing.T) {
	c := Counters{
		"link.0_1_0.up":     3,
		"link.0_1_0.down":   2,
		"link.0_1_1.up":     1,
		"process.rss":       42,
		"runtime.mem.alloc": 7,
		"notif.link-up":     4,
	}
	require.Equal(t, map[string]int64{"up": 3, "down": 2}, c.Link("0/1/0"))
	require.Equal(t, map[string]int64{"process.rss": 42, "runtime.mem.alloc": 7}, c.SysStats())
}

func TestFetchLinks(t *testing.T) {
	sampleResp := `
[
	{"id": "0/1/0", "state": "up", "lane_map": 3, "tech": "ck_400g", "fec": "rs", "speed_gbps": 400, "tries": 1, "up_fail_cause": "none", "down_cause": "none", "info_map": "link-up", "ucw_ber": 1e-12, "ccw_ber": 2e-6, "llr": "running", "up_time": 1700000000},
	{"id": "0/1/1", "state": "down", "lane_map": 12, "tech": "none", "fec": "none", "tries": 3, "up_fail_cause": "up-tries,serdes-signal", "down_cause": "none", "info_map": "none", "last_error": "oops"}
]
`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, sampleResp)
	}))
	defer ts.Close()

	s, err := FetchLinks(ts.URL)
	require.NoError(t, err)
	require.Equal(t, LinkStatuses{
		{ID: "0/1/0", State: "up", LaneMap: 3, Tech: "ck_400g", FEC: "rs", SpeedGbps: 400, Tries: 1, UpFailCause: "none",
			DownCause: "none", InfoMap: "link-up", UCWBER: 1e-12, CCWBER: 2e-6, LLR: "running", UpTime: 1700000000},
		{ID: "0/1/1", State: "down", LaneMap: 12, Tech: "none", FEC: "none", Tries: 3, UpFailCause: "up-tries,serdes-signal",
			DownCause: "none", InfoMap: "none", LastError: "oops"},
	}, s)
}

func TestFetchCounters(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/counters", r.URL.Path)
		fmt.Fprintln(w, `{"link.0_0_0.up": 1, "process.num_fds": 12}`)
	}))
	defer ts.Close()

	c, err := FetchCounters(ts.URL)
	require.NoError(t, err)
	require.Equal(t, Counters{"link.0_0_0.up": 1, "process.num_fds": 12}, c)
}

func TestFetchError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "link 9/9/9: link not found", http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := FetchLink(ts.URL, "9/9/9")
	require.ErrorContains(t, err, "link not found")
}

func TestFetchLinkAndEvents(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/links/0_2_1":
			fmt.Fprintln(w, `{"id": "0/2/1", "state": "up", "counters": {"up": 2}}`)
		case "/events":
			fmt.Fprintln(w, `[{"link": "0/2/1", "type": "link-up", "info_map": 2048, "info": {"tech": "ck_400g"}, "timestamp": "2024-01-02T03:04:05Z"}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	d, err := FetchLink(ts.URL, "0/2/1")
	require.NoError(t, err)
	require.Equal(t, "up", d["state"])
	require.Equal(t, map[string]interface{}{"up": float64(2)}, d["counters"])

	ev, err := FetchEvents(ts.URL)
	require.NoError(t, err)
	require.Len(t, ev, 1)
	require.Equal(t, "link-up", ev[0].Type)
	require.Equal(t, uint64(2048), ev[0].InfoMap)
	require.JSONEq(t, `{"tech": "ck_400g"}`, string(ev[0].Info))
}

func TestControl(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		got = r.URL.Path
		if r.URL.Path == "/links/0_0_0/reset" {
			w.WriteHeader(http.StatusConflict)
			_, _ = io.WriteString(w, "link busy\n")
		}
	}))
	defer ts.Close()

	require.NoError(t, Control(ts.URL, "0/1/1", OpUp))
	require.Equal(t, "/links/0_1_1/up", got)
	err := Control(ts.URL, "0/0/0", OpReset)
	require.ErrorContains(t, err, "409")
	require.ErrorContains(t, err, "link busy")
}
