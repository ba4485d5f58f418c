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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/facebook/linkmgr/link"
	"github.com/facebook/linkmgr/stats"
)

func reply(w http.ResponseWriter, v interface{}) {
	js, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err = w.Write(js); err != nil {
		log.Errorf("Failed to reply: %v", err)
	}
}

// httpStatus maps link errors to http status codes
func httpStatus(err error) int {
	switch {
	case errors.Is(err, link.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, link.ErrBusy), errors.Is(err, link.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, link.ErrTimeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (d *Daemon) linkFromRequest(w http.ResponseWriter, r *http.Request) *link.Link {
	id, err := link.ParseID(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	l, err := d.mgr.Get(id)
	if err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return nil
	}
	return l
}

// handleLinks reports status of every link
func (d *Daemon) handleLinks(w http.ResponseWriter, _ *http.Request) {
	links := d.mgr.Links()
	res := make(stats.LinkStatuses, 0, len(links))
	for _, l := range links {
		res = append(res, linkStatus(l.Describe()))
	}
	reply(w, res)
}

// handleCounters reports daemon counters merged with counters of every link
func (d *Daemon) handleCounters(w http.ResponseWriter, _ *http.Request) {
	counters := d.stats.GetCounters()
	for _, l := range d.mgr.Links() {
		linkCounters(l.Describe(), counters)
	}
	reply(w, counters)
}

func (d *Daemon) handleEvents(w http.ResponseWriter, _ *http.Request) {
	reply(w, d.stats.Events())
}

// handleLink reports the full description of a link
func (d *Daemon) handleLink(w http.ResponseWriter, r *http.Request) {
	l := d.linkFromRequest(w, r)
	if l == nil {
		return
	}
	reply(w, l.Describe())
}

// handleControl runs up, down or reset on a link
func (d *Daemon) handleControl(w http.ResponseWriter, r *http.Request) {
	l := d.linkFromRequest(w, r)
	if l == nil {
		return
	}
	var err error
	switch op := r.PathValue("op"); op {
	case stats.OpUp:
		err = l.Up()
	case stats.OpDown:
		err = l.Down()
	case stats.OpReset:
		err = l.Reset()
	default:
		http.Error(w, fmt.Sprintf("unknown operation %q", op), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	log.Infof("%s: %s requested by %s", l, r.PathValue("op"), r.RemoteAddr)
	reply(w, linkStatus(l.Describe()))
}
