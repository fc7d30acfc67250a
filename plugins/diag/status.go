/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package diag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/load"
	"github.com/shirou/gopsutil/mem"

	liberr "github.com/nabbar/golib/errors"

	"github.com/nabbar/dracon/plugin"
	"github.com/nabbar/dracon/protocol"
	"github.com/nabbar/dracon/router"
	"github.com/nabbar/dracon/session"
	"github.com/nabbar/dracon/stream"
)

// healthCheckTimeout bounds how long the status handler waits on the
// database probe before reporting it degraded rather than hanging a
// session on a stuck connection pool.
const healthCheckTimeout = 2 * time.Second

// StatsSource is the subset of *acceptor.Acceptor the status plugin reads;
// declared as an interface so this package carries no import-time
// dependency on acceptor, matching the rest of the plugin tree's pattern
// of depending only on session/protocol/router/stream.
type StatsSource interface {
	ActiveSessions() int
	PeakSessions() int64
	ServedSessions() uint64
	Uptime() time.Duration
}

// HealthChecker is satisfied by database/gorm's Database, probed once per
// request so a failing backing store shows up in /server_status without
// failing the request itself.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatusPlugin implements the built-in GET /server_status endpoint, gated
// by server.conf's server_status key (§6) and run at plugin.StatusOrder so
// it never pre-empts a real plugin's route.
type StatusPlugin struct {
	routes *router.Router
	stats  StatsSource
	db     HealthChecker

	active prometheus.Gauge
	peak   prometheus.Gauge
	served prometheus.Gauge
}

// NewStatus builds the status plugin. db may be nil when no database
// component is configured, in which case the status body omits the
// database health line.
func NewStatus(stats StatsSource, db HealthChecker) *StatusPlugin {
	p := &StatusPlugin{
		routes: router.New(""),
		stats:  stats,
		db:     db,
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dracond",
			Name:      "active_sessions",
			Help:      "Live session count across all reactors.",
		}),
		peak: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dracond",
			Name:      "peak_sessions",
			Help:      "Highest observed active session count.",
		}),
		served: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dracond",
			Name:      "served_sessions_total",
			Help:      "Total sessions accepted since startup (monotonic).",
		}),
	}

	p.routes.Add("/server_status").Handle("GET", p.statusFactory)

	return p
}

// RegisterStatus installs the status plugin under name.
func RegisterStatus(name string, stats StatsSource, db HealthChecker) error {
	return plugin.Register(name, NewStatus(stats, db))
}

func (p *StatusPlugin) Order() uint32 { return plugin.StatusOrder }

// Init registers the plugin's gauges/counter with the default Prometheus
// registry, so a deployment that also mounts promhttp's handler elsewhere
// in its process sees these alongside its own metrics.
func (p *StatusPlugin) Init(_ string) bool {
	prometheus.MustRegister(p.active, p.peak, p.served)
	return true
}

func (p *StatusPlugin) Destroy() {
	prometheus.Unregister(p.active)
	prometheus.Unregister(p.peak)
	prometheus.Unregister(p.served)
}

func (p *StatusPlugin) CreateSession(req *protocol.Request) (session.Handler, error) {
	_, _, err := p.routes.Lookup(req.URL, req.Method)
	if err != nil {
		if ce, ok := err.(liberr.Error); ok && ce.IsCode(router.ErrorNoRoute) {
			return nil, nil
		}
		return nil, err
	}

	var h session.Handler = p.writeStatus
	return h, nil
}

func (p *StatusPlugin) writeStatus(s stream.Stream, req *protocol.Request) error {
	active := p.stats.ActiveSessions()
	peak := p.stats.PeakSessions()
	served := p.stats.ServedSessions()

	p.active.Set(float64(active))
	p.peak.Set(float64(peak))
	p.served.Set(float64(served))

	var body strings.Builder
	fmt.Fprintf(&body, "Active sessions: %d\n", active)
	fmt.Fprintf(&body, "Sessions peak: %d\n", peak)
	fmt.Fprintf(&body, "Uptime: %s\n", formatUptime(p.stats.Uptime()))
	fmt.Fprintf(&body, "Served sessions: %d\n", served)

	if vm, err := mem.VirtualMemory(); err == nil {
		fmt.Fprintf(&body, "Memory used: %.1f%%\n", vm.UsedPercent)
	}
	if la, err := load.Avg(); err == nil {
		fmt.Fprintf(&body, "Load average (1m, 5m, 15m): %.2f, %.2f, %.2f\n", la.Load1, la.Load5, la.Load15)
	}

	if p.db != nil {
		ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
		defer cancel()

		if err := p.db.HealthCheck(ctx); err != nil {
			fmt.Fprintf(&body, "Database: degraded (%v)\n", err)
		} else {
			body.WriteString("Database: ok\n")
		}
	}

	resp := protocol.NewResponse()
	resp.Status = 200
	resp.Body = []byte(body.String())
	resp.SetHeader("Content-Type", "text/plain")
	resp.SetHeader("Refresh", "5")

	return s.Write(resp.Bytes(keepAliveSeconds(s, req)))
}

// formatUptime renders d as "D days, H hours, M minutes and S seconds",
// matching the reference server's status line.
func formatUptime(d time.Duration) string {
	total := int64(d.Seconds())

	days := total / (60 * 60 * 24)
	total -= days * 60 * 60 * 24
	hours := total / (60 * 60)
	total -= hours * 60 * 60
	minutes := total / 60
	seconds := total - minutes*60

	return fmt.Sprintf("%d days, %d hours, %d minutes and %d seconds", days, hours, minutes, seconds)
}
