// Package observability exposes Prometheus instrumentation for the
// simulation engine.  The collector satisfies the engine's recorder
// interface, so wiring it in is one option at session construction.
package observability

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nettopogen"

// SimCollector owns the engine's metrics and the registry they live in.
type SimCollector struct {
	registry *prometheus.Registry

	nodes     prometheus.Gauge
	links     prometheus.Gauge
	linksDown prometheus.Gauge
	meanUtil  prometheus.Gauge
	maxUtil   prometheus.Gauge

	pathQueries  *prometheus.CounterVec
	faults       *prometheus.CounterVec
	packets      *prometheus.CounterVec
	convTimeouts *prometheus.CounterVec

	convRounds *prometheus.HistogramVec
}

// NewSimCollector builds the collector on a private registry.
func NewSimCollector() (*SimCollector, error) {
	registry := prometheus.NewRegistry()
	sc := &SimCollector{registry: registry}

	var err error

	sc.nodes, err = registerGauge(registry, prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "topology_nodes",
		Help:      "Devices in the topology, including failed ones.",
	})
	if err != nil {
		return nil, err
	}

	sc.links, err = registerGauge(registry, prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "topology_links",
		Help:      "Links in the topology, including failed ones.",
	})
	if err != nil {
		return nil, err
	}

	sc.linksDown, err = registerGauge(registry, prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "topology_links_down",
		Help:      "Links currently marked unavailable.",
	})
	if err != nil {
		return nil, err
	}

	sc.meanUtil, err = registerGauge(registry, prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "link_utilization_mean",
		Help:      "Mean link utilization over the last traffic step.",
	})
	if err != nil {
		return nil, err
	}

	sc.maxUtil, err = registerGauge(registry, prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "link_utilization_max",
		Help:      "Peak link utilization over the last traffic step.",
	})
	if err != nil {
		return nil, err
	}

	sc.pathQueries, err = registerCounterVec(registry, prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "path_queries_total",
		Help:      "Route computations by algorithm and outcome.",
	}, []string{"algo", "outcome"})
	if err != nil {
		return nil, err
	}

	sc.faults, err = registerCounterVec(registry, prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "faults_total",
		Help:      "Fault injections by action.",
	}, []string{"action"})
	if err != nil {
		return nil, err
	}

	sc.packets, err = registerCounterVec(registry, prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_total",
		Help:      "Simulated packets by outcome.",
	}, []string{"outcome"})
	if err != nil {
		return nil, err
	}

	sc.convTimeouts, err = registerCounterVec(registry, prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "convergence_timeouts_total",
		Help:      "Convergence runs that exhausted the round budget.",
	}, []string{"mode"})
	if err != nil {
		return nil, err
	}

	sc.convRounds, err = registerHistogramVec(registry, prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "convergence_rounds",
		Help:      "Rounds taken by protocol convergence runs.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 7),
	}, []string{"mode"})
	if err != nil {
		return nil, err
	}

	return sc, nil
}

// Registry exposes the private registry, mainly so tests can gather.
func (sc *SimCollector) Registry() *prometheus.Registry {
	return sc.registry
}

// Handler serves the metrics endpoint.
func (sc *SimCollector) Handler() http.Handler {
	return promhttp.HandlerFor(sc.registry, promhttp.HandlerOpts{})
}

// RecordTopoCounts tracks topology size.
func (sc *SimCollector) RecordTopoCounts(nodes, links, linksDown int) {
	sc.nodes.Set(float64(nodes))
	sc.links.Set(float64(links))
	sc.linksDown.Set(float64(linksDown))
}

// RecordPathQuery counts one route computation.
func (sc *SimCollector) RecordPathQuery(algo string, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	sc.pathQueries.WithLabelValues(algo, outcome).Inc()
}

// RecordFault counts one fault injection.
func (sc *SimCollector) RecordFault(action string) {
	sc.faults.WithLabelValues(action).Inc()
}

// RecordTraffic accumulates packet outcomes of one traffic step.
func (sc *SimCollector) RecordTraffic(generated, delivered, dropped int) {
	sc.packets.WithLabelValues("generated").Add(float64(generated))
	sc.packets.WithLabelValues("delivered").Add(float64(delivered))
	sc.packets.WithLabelValues("dropped").Add(float64(dropped))
}

// RecordConvergence observes one convergence run.
func (sc *SimCollector) RecordConvergence(mode string, rounds int, converged bool) {
	sc.convRounds.WithLabelValues(mode).Observe(float64(rounds))
	if !converged {
		sc.convTimeouts.WithLabelValues(mode).Inc()
	}
}

// RecordUtilization tracks link load of the last traffic step.
func (sc *SimCollector) RecordUtilization(mean, max float64) {
	sc.meanUtil.Set(mean)
	sc.maxUtil.Set(max)
}

func registerGauge(reg prometheus.Registerer, opts prometheus.GaugeOpts) (prometheus.Gauge, error) {
	g := prometheus.NewGauge(opts)
	if err := reg.Register(g); err != nil {
		are := prometheus.AlreadyRegisteredError{}
		if errors.As(err, &are) {
			return are.ExistingCollector.(prometheus.Gauge), nil
		}
		return nil, err
	}
	return g, nil
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels []string) (*prometheus.CounterVec, error) {
	cv := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(cv); err != nil {
		are := prometheus.AlreadyRegisteredError{}
		if errors.As(err, &are) {
			return are.ExistingCollector.(*prometheus.CounterVec), nil
		}
		return nil, err
	}
	return cv, nil
}

func registerHistogramVec(reg prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) (*prometheus.HistogramVec, error) {
	hv := prometheus.NewHistogramVec(opts, labels)
	if err := reg.Register(hv); err != nil {
		are := prometheus.AlreadyRegisteredError{}
		if errors.As(err, &are) {
			return are.ExistingCollector.(*prometheus.HistogramVec), nil
		}
		return nil, err
	}
	return hv, nil
}
