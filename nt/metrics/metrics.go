// Package metrics exports client.Stat as prometheus counters.
package metrics

import (
	"net/http"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/temoto/ntsync/log2"
	"github.com/temoto/ntsync/nt/client"
)

const (
	Namespace = "ntsync"
	Subsystem = "client"
)

type counter struct {
	name string
	help string
	get  func(*client.Stat) int64
}

var counters = []counter{
	{"disconnects_total", "Connection ends, any reason.", func(s *client.Stat) int64 { return s.Disconnects.Value() }},
	{"decode_errors_total", "Malformed binary frames.", func(s *client.Stat) int64 { return s.DecodeErrors.Value() }},
	{"unknown_ids_total", "Values for topic ids not announced.", func(s *client.Stat) int64 { return s.UnknownIDs.Value() }},
	{"pings_total", "Round trip probes sent.", func(s *client.Stat) int64 { return s.Pings.Value() }},
	{"pongs_total", "Round trip probes answered.", func(s *client.Stat) int64 { return s.Pongs.Value() }},
	{"recv_text_frames_total", "", func(s *client.Stat) int64 { return s.Recv.Text.Count.Value() }},
	{"recv_text_bytes_total", "", func(s *client.Stat) int64 { return s.Recv.Text.Size.Value() }},
	{"recv_binary_frames_total", "", func(s *client.Stat) int64 { return s.Recv.Binary.Count.Value() }},
	{"recv_binary_bytes_total", "", func(s *client.Stat) int64 { return s.Recv.Binary.Size.Value() }},
	{"recv_values_total", "", func(s *client.Stat) int64 { return s.Recv.Values.Value() }},
	{"send_text_frames_total", "", func(s *client.Stat) int64 { return s.Send.Text.Count.Value() }},
	{"send_text_bytes_total", "", func(s *client.Stat) int64 { return s.Send.Text.Size.Value() }},
	{"send_binary_frames_total", "", func(s *client.Stat) int64 { return s.Send.Binary.Count.Value() }},
	{"send_binary_bytes_total", "", func(s *client.Stat) int64 { return s.Send.Binary.Size.Value() }},
	{"send_values_total", "", func(s *client.Stat) int64 { return s.Send.Values.Value() }},
}

// Register adds CounterFunc per stat field. labels are constant, e.g. server url.
func Register(reg prometheus.Registerer, stat *client.Stat, labels prometheus.Labels) error {
	for _, c := range counters {
		c := c
		help := c.help
		if help == "" {
			help = c.name
		}
		cf := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   Namespace,
			Subsystem:   Subsystem,
			Name:        c.name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(c.get(stat)) })
		if err := reg.Register(cf); err != nil {
			return errors.Annotatef(err, "metrics register %s", c.name)
		}
	}
	return nil
}

// Serve runs HTTP /metrics on addr until server error.
func Serve(addr string, g prometheus.Gatherer, log *log2.Log) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	log.Infof("metrics listen=%s", addr)
	err := http.ListenAndServe(addr, mux)
	return errors.Annotatef(err, "metrics listen=%s", addr)
}
