package telemetry

// SampleRatio is the fraction of root traces kept.
const SampleRatio = 0.25

// Span names used across adapters.
const (
	SpanGeocode       = "nominatim.search"
	SpanRoute         = "osrm.route"
	SpanPosition      = "navigator.position"
	SpanArchive       = "archive.put"
	SpanAlertFanout   = "alerts.publish"
	SpanJournalInsert = "journal.insert"
)

// SLI names for dashboards.
const (
	// Latency
	MetricAPILatencyP95      = "api.latency.p95"
	MetricUpstreamLatencyP95 = "upstream.latency.p95"

	// Data freshness
	MetricPositionAge = "feed.position_age_seconds"

	// Business
	MetricAlarmsTriggered = "business.alarms_triggered"
	MetricArrivals        = "business.arrivals"
)
