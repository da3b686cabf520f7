package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "lookupclass"

var (
	DeltasProcessed = newCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deltas_processed_total",
		Help:      "State deltas processed by the route classID engine.",
	})
	RouteClassChanges = newCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "route_classid_changes_total",
		Help:      "Route classID writes, by action (set or clear).",
	}, []string{"action"})
	ReAddAllRoutes = newCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "readd_all_routes_total",
		Help:      "Full route re-evaluations triggered by subnet cache growth.",
	})
	MacEvents = newCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mac_events_total",
		Help:      "Hardware L2 learn/age events, by type and whether they changed the MAC table.",
	}, []string{"type", "result"})
	ClassifiedPrefixes = newGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "classified_prefixes",
		Help:      "Routes currently carrying a classID.",
	})
	TrackedNextHops = newGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracked_next_hops",
		Help:      "Next hops present in the next-hop index.",
	})
	CachedSubnets = newGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cached_subnets",
		Help:      "Subnets in the per-VLAN subnet cache.",
	})
	StateGeneration = newGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "state_generation",
		Help:      "Generation of the currently published switch state.",
	})
	SyncErrors = newCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sonic_sync_errors_total",
		Help:      "Failed SONiC snapshot reads or classID writes.",
	})
)
