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
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const metricPrefix = "linkmgr_"

// PrometheusExporter holds the exporter details
type PrometheusExporter struct {
	registry    *prometheus.Registry
	listenPort  int
	linkmgrPort int
	interval    time.Duration

	mux    sync.Mutex
	gauges map[string]prometheus.Gauge
	vecs   map[string]*prometheus.GaugeVec
}

// NewPrometheusExporter creates a new instance of PrometheusExporter
func NewPrometheusExporter(listenPort int, linkmgrPort int, scrapeInterval time.Duration) *PrometheusExporter {
	return &PrometheusExporter{
		registry:    prometheus.NewRegistry(),
		interval:    scrapeInterval,
		listenPort:  listenPort,
		linkmgrPort: linkmgrPort,
		gauges:      map[string]prometheus.Gauge{},
		vecs:        map[string]*prometheus.GaugeVec{},
	}
}

// Handler returns the metrics http handler
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(
		e.registry,
		promhttp.HandlerOpts{
			// Opt into OpenMetrics to support exemplars.
			EnableOpenMetrics: true,
		},
	)
}

// Start starts the exporter
func (e *PrometheusExporter) Start() error {
	go func() {
		url := fmt.Sprintf("http://localhost:%d", e.linkmgrPort)
		for {
			if err := e.Scrape(url); err != nil {
				log.Errorf("Failed to fetch linkmgrd metrics: %v", err)
			}
			time.Sleep(e.interval)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", e.listenPort), mux)
}

// Scrape fetches counters from url and updates the metrics
func (e *PrometheusExporter) Scrape(url string) error {
	counters, err := FetchCounters(url)
	if err != nil {
		return err
	}
	e.mux.Lock()
	defer e.mux.Unlock()
	for mkey, mval := range counters {
		if id, name, ok := splitLinkKey(mkey); ok {
			vec, err := e.vec(name)
			if err != nil {
				log.Errorf("failed to register metric %s %v", mkey, err)
				continue
			}
			vec.WithLabelValues(id).Set(float64(mval))
			continue
		}
		g, err := e.gauge(mkey)
		if err != nil {
			log.Errorf("failed to register metric %s %v", mkey, err)
			continue
		}
		g.Set(float64(mval))
	}
	return nil
}

func (e *PrometheusExporter) gauge(key string) (prometheus.Gauge, error) {
	if g, ok := e.gauges[key]; ok {
		return g, nil
	}
	var g prometheus.Gauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: metricPrefix + flattenKey(key),
		Help: key,
	})
	if err := e.registry.Register(g); err != nil {
		are := &prometheus.AlreadyRegisteredError{}
		if !errors.As(err, are) {
			return nil, err
		}
		g = are.ExistingCollector.(prometheus.Gauge)
	}
	e.gauges[key] = g
	return g, nil
}

func (e *PrometheusExporter) vec(name string) (*prometheus.GaugeVec, error) {
	if v, ok := e.vecs[name]; ok {
		return v, nil
	}
	v := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: metricPrefix + "link_" + flattenKey(name),
		Help: "link " + name,
	}, []string{"link"})
	if err := e.registry.Register(v); err != nil {
		are := &prometheus.AlreadyRegisteredError{}
		if !errors.As(err, are) {
			return nil, err
		}
		v = are.ExistingCollector.(*prometheus.GaugeVec)
	}
	e.vecs[name] = v
	return v, nil
}

// splitLinkKey splits link.<d_g_n>.<name> into link identity d/g/n and name
func splitLinkKey(key string) (id, name string, ok bool) {
	if !strings.HasPrefix(key, LinkPrefix) {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(key, LinkPrefix), ".", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", false
	}
	return strings.ReplaceAll(parts[0], "_", "/"), parts[1], true
}

func flattenKey(key string) string {
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, ".", "_")
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, "=", "_")
	key = strings.ReplaceAll(key, "/", "_")
	return key
}
