// Package metrics defines the daemon's Prometheus metrics. Every metric is
// registered on the default registry through the helpers below, which also
// record a definition so the set can be documented.
package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metricDefinition struct {
	Name   string
	Help   string
	Type   string
	Labels []string
}

var definitions []metricDefinition

func newCounter(opts prometheus.CounterOpts) prometheus.Counter {
	definitions = append(definitions, metricDefinition{Name: prometheus.BuildFQName(opts.Namespace, opts.Subsystem, opts.Name), Help: opts.Help, Type: "counter"})
	return promauto.NewCounter(opts)
}

func newCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	definitions = append(definitions, metricDefinition{Name: prometheus.BuildFQName(opts.Namespace, opts.Subsystem, opts.Name), Help: opts.Help, Type: "counter", Labels: labelNames})
	return promauto.NewCounterVec(opts, labelNames)
}

func newGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	definitions = append(definitions, metricDefinition{Name: prometheus.BuildFQName(opts.Namespace, opts.Subsystem, opts.Name), Help: opts.Help, Type: "gauge"})
	return promauto.NewGauge(opts)
}

// Documentation renders every registered metric as a markdown table.
func Documentation() string {
	defs := make([]metricDefinition, len(definitions))
	copy(defs, definitions)
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	var sb strings.Builder
	sb.WriteString("| Name | Type | Labels | Description |\n|:---|:---|:---|:---|\n")
	for _, d := range defs {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n", d.Name, d.Type, strings.Join(d.Labels, ","), d.Help)
	}
	return sb.String()
}
