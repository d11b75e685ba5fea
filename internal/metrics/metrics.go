package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the service
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // Rebuilds counts category rebuild runs by outcome (ok, error)
    Rebuilds = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "poigraph_rebuilds_total", Help: "Category rebuild runs by status."},
        []string{"category", "status"},
    )
    // RebuildDuration tracks wall time of a category rebuild in seconds
    RebuildDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "poigraph_rebuild_duration_seconds", Help: "Category rebuild duration in seconds.", Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 180, 600}},
        []string{"category", "status"},
    )
    // ProjectionFailures counts POIs dropped because they could not be projected
    ProjectionFailures = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "poigraph_projection_failures_total", Help: "POIs excluded from clustering by projection failures."},
        []string{"category"},
    )
    Clusters = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{Name: "poigraph_clusters", Help: "Clusters written by the last successful rebuild."},
        []string{"category"},
    )
    Edges = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{Name: "poigraph_edges", Help: "Cluster edges written by the last successful rebuild."},
        []string{"category"},
    )
    // RouteQueries counts route lookups by outcome (ok, not_found, unavailable, error)
    RouteQueries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "poigraph_route_queries_total", Help: "Route queries by outcome."},
        []string{"category", "outcome"},
    )
    // WebhookDeliveries counts rebuild notification attempts by status (ok, retry, failed)
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "poigraph_webhook_deliveries_total", Help: "Rebuild webhook delivery attempts by status."},
        []string{"status"},
    )
    // EventSubscribers tracks open websocket event streams
    EventSubscribers = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "poigraph_event_subscribers", Help: "Open rebuild event streams."},
    )
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(Rebuilds)
        Registry.MustRegister(RebuildDuration)
        Registry.MustRegister(ProjectionFailures)
        Registry.MustRegister(Clusters)
        Registry.MustRegister(Edges)
        Registry.MustRegister(RouteQueries)
        Registry.MustRegister(WebhookDeliveries)
        Registry.MustRegister(EventSubscribers)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
