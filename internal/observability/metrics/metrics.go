package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

var durationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

type histogram struct {
	counts []uint64
	sum    float64
	count  uint64
}

func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range durationBuckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			return
		}
	}
	// Values above the last bound only show up in the +Inf bucket via count.
}

type registry struct {
	mu sync.Mutex

	httpRequests map[string]uint64 // handler|method|code
	httpErrors   map[string]uint64 // handler|method
	httpLatency  map[string]*histogram

	operations  map[string]uint64 // mode|status
	opLatency   map[string]*histogram
	eventsTotal map[string]uint64 // type
}

var defaultRegistry = &registry{
	httpRequests: make(map[string]uint64),
	httpErrors:   make(map[string]uint64),
	httpLatency:  make(map[string]*histogram),
	operations:   make(map[string]uint64),
	opLatency:    make(map[string]*histogram),
	eventsTotal:  make(map[string]uint64),
}

const labelSep = "\x1f"

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	r := defaultRegistry
	r.mu.Lock()
	defer r.mu.Unlock()

	r.httpRequests[handler+labelSep+method+labelSep+strconv.Itoa(status)]++
	if status >= 500 {
		r.httpErrors[handler+labelSep+method]++
	}
	key := handler + labelSep + method
	hist := r.httpLatency[key]
	if hist == nil {
		hist = &histogram{counts: make([]uint64, len(durationBuckets))}
		r.httpLatency[key] = hist
	}
	hist.observe(duration.Seconds())
}

// ObserveOperation records the outcome of one routed request.
func ObserveOperation(mode, status string, duration time.Duration) {
	r := defaultRegistry
	r.mu.Lock()
	defer r.mu.Unlock()

	r.operations[mode+labelSep+status]++
	hist := r.opLatency[mode]
	if hist == nil {
		hist = &histogram{counts: make([]uint64, len(durationBuckets))}
		r.opLatency[mode] = hist
	}
	hist.observe(duration.Seconds())
}

// CountEvent records one event pushed onto the session event bus.
func CountEvent(eventType string) {
	r := defaultRegistry
	r.mu.Lock()
	r.eventsTotal[eventType]++
	r.mu.Unlock()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func (r *registry) render() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	b.Grow(2048)

	b.WriteString("# HELP ismsagent_http_requests_total Total number of HTTP requests processed.\n")
	b.WriteString("# TYPE ismsagent_http_requests_total counter\n")
	for _, key := range sortedKeys(r.httpRequests) {
		parts := strings.SplitN(key, labelSep, 3)
		fmt.Fprintf(&b, "ismsagent_http_requests_total{handler=%q,method=%q,code=%q} %d\n",
			escape(parts[0]), escape(parts[1]), escape(parts[2]), r.httpRequests[key])
	}

	b.WriteString("# HELP ismsagent_http_request_errors_total Total number of HTTP requests that resulted in a server error.\n")
	b.WriteString("# TYPE ismsagent_http_request_errors_total counter\n")
	for _, key := range sortedKeys(r.httpErrors) {
		parts := strings.SplitN(key, labelSep, 2)
		fmt.Fprintf(&b, "ismsagent_http_request_errors_total{handler=%q,method=%q} %d\n",
			escape(parts[0]), escape(parts[1]), r.httpErrors[key])
	}

	renderHistogram(&b, "ismsagent_http_request_duration_seconds",
		"HTTP request duration in seconds.", "handler", "method", r.httpLatency)

	b.WriteString("# HELP ismsagent_operations_total Total number of routed operation requests.\n")
	b.WriteString("# TYPE ismsagent_operations_total counter\n")
	for _, key := range sortedKeys(r.operations) {
		parts := strings.SplitN(key, labelSep, 2)
		fmt.Fprintf(&b, "ismsagent_operations_total{mode=%q,status=%q} %d\n",
			escape(parts[0]), escape(parts[1]), r.operations[key])
	}

	b.WriteString("# HELP ismsagent_operation_duration_seconds Routed operation duration in seconds.\n")
	b.WriteString("# TYPE ismsagent_operation_duration_seconds histogram\n")
	for _, key := range sortedKeys(r.opLatency) {
		hist := r.opLatency[key]
		for idx, bound := range durationBuckets {
			fmt.Fprintf(&b, "ismsagent_operation_duration_seconds_bucket{mode=%q,le=%q} %d\n",
				escape(key), formatFloat(bound), hist.counts[idx])
		}
		fmt.Fprintf(&b, "ismsagent_operation_duration_seconds_bucket{mode=%q,le=\"+Inf\"} %d\n", escape(key), hist.count)
		fmt.Fprintf(&b, "ismsagent_operation_duration_seconds_sum{mode=%q} %s\n", escape(key), formatFloat(hist.sum))
		fmt.Fprintf(&b, "ismsagent_operation_duration_seconds_count{mode=%q} %d\n", escape(key), hist.count)
	}

	b.WriteString("# HELP ismsagent_session_events_total Total number of events pushed to the session event bus.\n")
	b.WriteString("# TYPE ismsagent_session_events_total counter\n")
	for _, key := range sortedKeys(r.eventsTotal) {
		fmt.Fprintf(&b, "ismsagent_session_events_total{type=%q} %d\n", escape(key), r.eventsTotal[key])
	}

	return b.String()
}

func renderHistogram(b *strings.Builder, name, help, label1, label2 string, series map[string]*histogram) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s histogram\n", name)
	for _, key := range sortedKeys(series) {
		parts := strings.SplitN(key, labelSep, 2)
		hist := series[key]
		for idx, bound := range durationBuckets {
			fmt.Fprintf(b, "%s_bucket{%s=%q,%s=%q,le=%q} %d\n",
				name, label1, escape(parts[0]), label2, escape(parts[1]), formatFloat(bound), hist.counts[idx])
		}
		fmt.Fprintf(b, "%s_bucket{%s=%q,%s=%q,le=\"+Inf\"} %d\n", name, label1, escape(parts[0]), label2, escape(parts[1]), hist.count)
		fmt.Fprintf(b, "%s_sum{%s=%q,%s=%q} %s\n", name, label1, escape(parts[0]), label2, escape(parts[1]), formatFloat(hist.sum))
		fmt.Fprintf(b, "%s_count{%s=%q,%s=%q} %d\n", name, label1, escape(parts[0]), label2, escape(parts[1]), hist.count)
	}
}
