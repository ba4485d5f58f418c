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
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	sdaemon "github.com/coreos/go-systemd/daemon"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/facebook/linkmgr/link"
	"github.com/facebook/linkmgr/notif"
)

// netdevTypes are the notifications that move a netdev
const netdevTypes = notif.LinkUp | notif.LinkUpFail | notif.LinkDown | notif.LinkAsyncDown

type registration struct {
	ch *notif.Channel
	id notif.ID
}

// Daemon is linkmgrd: the link registry and its monitoring server
type Daemon struct {
	cfg     *Config
	backend *Backend
	mgr     *link.Manager
	stats   *Stats
	netdev  *Netdev
	regs    []registration
}

// New opens the backend and builds every configured port group
func New(cfg *Config) (*Daemon, error) {
	b, err := OpenBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}
	if m := b.Memory(); m != nil {
		Simulate(m, cfg)
	}
	var nd *Netdev
	if names := cfg.NetdevNames(); cfg.Netdev && len(names) > 0 {
		if nd, err = DialNetdev(names); err != nil {
			b.Close()
			return nil, err
		}
	}
	d, err := NewWithManager(cfg, b, nd)
	if err != nil {
		if nd != nil {
			nd.Close()
		}
		b.Close()
		return nil, err
	}
	return d, nil
}

// NewWithManager builds the registry over an already open backend. nd may be nil.
func NewWithManager(cfg *Config, b *Backend, nd *Netdev) (*Daemon, error) {
	mgr, err := Build(cfg, b)
	if err != nil {
		return nil, err
	}
	d := &Daemon{
		cfg:     cfg,
		backend: b,
		mgr:     mgr,
		stats:   NewStats(),
		netdev:  nd,
	}
	for _, g := range mgr.Groups() {
		if err := d.register(g.Notifications(), d.stats.Notify, notif.TypeAll); err != nil {
			d.Close()
			return nil, err
		}
		if nd != nil {
			if err := d.register(g.Notifications(), nd.Notify, netdevTypes); err != nil {
				d.Close()
				return nil, err
			}
		}
	}
	return d, nil
}

func (d *Daemon) register(ch *notif.Channel, cb notif.Callback, types notif.Type) error {
	id, err := ch.Register(cb, types, nil)
	if err != nil {
		return err
	}
	d.regs = append(d.regs, registration{ch: ch, id: id})
	return nil
}

// Manager returns the link registry
func (d *Daemon) Manager() *link.Manager {
	return d.mgr
}

// Stats returns daemon counters
func (d *Daemon) Stats() *Stats {
	return d.stats
}

type upWaiter struct {
	once sync.Once
	ch   chan struct{}
}

// UpAll brings every link up, UpParallelism at a time, and waits for each attempt to end.
// It returns how many links came up.
func (d *Daemon) UpAll(ctx context.Context) (int, error) {
	links := d.mgr.Links()
	waiters := make(map[link.ID]*upWaiter, len(links))
	for _, l := range links {
		waiters[l.ID()] = &upWaiter{ch: make(chan struct{})}
	}
	done := func(_ interface{}, msg notif.Message) {
		if w, ok := waiters[link.ID{Dev: msg.Dev, Group: msg.Group, Num: msg.Link}]; ok {
			w.once.Do(func() { close(w.ch) })
		}
	}
	var regs []registration
	defer func() {
		for _, r := range regs {
			if err := r.ch.Unregister(r.id); err != nil {
				log.Warningf("unregistering up waiter: %v", err)
			}
		}
	}()
	for _, g := range d.mgr.Groups() {
		id, err := g.Notifications().Register(done, notif.LinkUp|notif.LinkUpFail, nil)
		if err != nil {
			return 0, err
		}
		regs = append(regs, registration{ch: g.Notifications(), id: id})
	}

	if d.cfg.UpWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.UpWait)
		defer cancel()
	}
	var up atomic.Int32
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(d.cfg.UpParallelism)
	for _, l := range links {
		l := l
		eg.Go(func() error {
			if err := l.Up(); err != nil {
				return err
			}
			if l.State() != link.StateUp {
				select {
				case <-waiters[l.ID()].ch:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			info := l.Describe()
			if info.State == link.StateUp {
				up.Add(1)
				log.Infof("%s: up at %s after %d tries", l, info.Tech, info.Tries)
			} else {
				log.Warningf("%s: failed to come up (cause = %s): %s", l, info.UpFailCause, info.LastError)
			}
			return nil
		})
	}
	err := eg.Wait()
	return int(up.Load()), err
}

// Handler returns the monitoring and control http handler
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", d.handleLinks)
	mux.HandleFunc("GET /counters", d.handleCounters)
	mux.HandleFunc("GET /events", d.handleEvents)
	mux.HandleFunc("GET /links/{id}", d.handleLink)
	mux.HandleFunc("POST /links/{id}/{op}", d.handleControl)
	return mux
}

// Run serves monitoring, polls faults and brings links up until ctx is done
func (d *Daemon) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	addr := net.JoinHostPort(d.cfg.ListenAddress, strconv.Itoa(d.cfg.MonitoringPort))
	srv := &http.Server{Addr: addr, Handler: d.Handler()}
	eg.Go(func() error {
		log.Infof("Starting http json server on %s", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	eg.Go(func() error {
		t := time.NewTicker(d.cfg.Interval)
		defer t.Stop()
		for {
			if err := d.stats.CollectSysStats(); err != nil {
				log.Warningf("failed to get system metrics %s", err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
			}
		}
	})

	for _, g := range d.mgr.Groups() {
		g := g
		eg.Go(func() error {
			g.PollFaults(ctx, d.cfg.FaultPollInterval)
			return nil
		})
	}

	eg.Go(func() error {
		if d.cfg.AutoUp {
			n, err := d.UpAll(ctx)
			if err != nil && ctx.Err() == nil {
				log.Errorf("bringing links up: %v", err)
			}
			log.Infof("%d of %d links up", n, len(d.mgr.Links()))
		}
		sent, err := sdaemon.SdNotify(false, sdaemon.SdNotifyReady)
		if err != nil {
			log.Warningf("sd_notify: %v", err)
		} else if sent {
			log.Debug("sd_notify: ready")
		}
		return nil
	})

	return eg.Wait()
}

// Close takes every link down and releases the hardware
func (d *Daemon) Close() error {
	for _, r := range d.regs {
		if err := r.ch.Unregister(r.id); err != nil {
			log.Warningf("unregistering callback: %v", err)
		}
	}
	d.regs = nil
	errs := []error{d.mgr.Close()}
	if d.netdev != nil {
		errs = append(errs, d.netdev.Close())
	}
	errs = append(errs, d.backend.Close())
	return errors.Join(errs...)
}
