package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Metric names recorded by the dataset loader.
const (
	SamplesRead   = "dataset_samples_read"
	ReadSeconds   = "dataset_read_seconds"
	LoadFailures  = "dataset_load_failures"
	StatsSeconds  = "dataset_stats_seconds"
	DatasetsReady = "datasets_loaded"
)

// DefaultBuckets are histogram buckets in seconds.
var DefaultBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}

// maxHistory bounds the samples kept per metric name.
const maxHistory = 1000

type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

type Metric struct {
	Name      string                 `json:"name"`
	Type      MetricType             `json:"type"`
	Value     float64                `json:"value"`
	Labels    map[string]string      `json:"labels,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Help      string                 `json:"help,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// MetricsCollector keeps a bounded history of every recorded metric and
// running totals for counters. The latest sample of each label set is kept
// apart from the history so no series drops out of the export. Recording on a nil *MetricsCollector is a
// no-op, so callers may leave metrics unset.
type MetricsCollector struct {
	metrics     map[string][]*Metric
	totals      map[string]float64
	latest      map[string]map[string]*Metric
	metricsLock sync.RWMutex

	startTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics:   make(map[string][]*Metric),
		totals:    make(map[string]float64),
		latest:    make(map[string]map[string]*Metric),
		startTime: time.Now(),
	}
}

func (mc *MetricsCollector) RecordMetric(metric *Metric) {
	if mc == nil {
		return
	}
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()

	metric.Timestamp = time.Now()
	mc.metrics[metric.Name] = append(mc.metrics[metric.Name], metric)
	if mc.latest[metric.Name] == nil {
		mc.latest[metric.Name] = make(map[string]*Metric)
	}
	mc.latest[metric.Name][seriesKey(metric.Name, metric.Labels)] = metric
	if metric.Type == MetricTypeCounter {
		mc.totals[seriesKey(metric.Name, metric.Labels)] += metric.Value
	}

	if len(mc.metrics[metric.Name]) > maxHistory {
		mc.metrics[metric.Name] = mc.metrics[metric.Name][100:]
	}
}

func (mc *MetricsCollector) GetMetric(name string) ([]*Metric, error) {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	metrics, ok := mc.metrics[name]
	if !ok {
		return nil, fmt.Errorf("metric %s not found", name)
	}

	result := make([]*Metric, len(metrics))
	for i, m := range metrics {
		metricCopy := *m
		result[i] = &metricCopy
	}
	return result, nil
}

func (mc *MetricsCollector) GetAllMetrics() map[string][]*Metric {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	result := make(map[string][]*Metric, len(mc.metrics))
	for name, metrics := range mc.metrics {
		metricCopy := make([]*Metric, len(metrics))
		for i, m := range metrics {
			m := *m
			metricCopy[i] = &m
		}
		result[name] = metricCopy
	}
	return result
}

// Total returns the running sum of a counter series across its whole
// lifetime, including samples already dropped from history.
func (mc *MetricsCollector) Total(name string, labels map[string]string) float64 {
	if mc == nil {
		return 0
	}
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()
	return mc.totals[seriesKey(name, labels)]
}

func (mc *MetricsCollector) GetMetricSummary(name string) (map[string]interface{}, error) {
	metrics, err := mc.GetMetric(name)
	if err != nil {
		return nil, err
	}

	if len(metrics) == 0 {
		return map[string]interface{}{
			"count": 0,
		}, nil
	}

	summary := map[string]interface{}{
		"count":     len(metrics),
		"latest":    metrics[len(metrics)-1].Value,
		"earliest":  metrics[0].Value,
		"min":       metrics[0].Value,
		"max":       metrics[0].Value,
		"timestamp": metrics[len(metrics)-1].Timestamp,
	}

	sum := 0.0
	for _, m := range metrics {
		sum += m.Value
		if m.Value < summary["min"].(float64) {
			summary["min"] = m.Value
		}
		if m.Value > summary["max"].(float64) {
			summary["max"] = m.Value
		}
	}

	summary["average"] = sum / float64(len(metrics))
	summary["sum"] = sum
	summary["name"] = name

	return summary, nil
}

// CollectRuntimeMetrics records heap and goroutine gauges every interval
// until ctx is done.
func (mc *MetricsCollector) CollectRuntimeMetrics(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mc.collectRuntime()
		}
	}
}

func (mc *MetricsCollector) collectRuntime() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mc.RecordMetric(&Metric{
		Name:  "memory_heap_alloc",
		Type:  MetricTypeGauge,
		Value: float64(m.HeapAlloc),
		Help:  "Memory heap allocated in bytes",
	})
	mc.RecordMetric(&Metric{
		Name:  "system_goroutines",
		Type:  MetricTypeGauge,
		Value: float64(runtime.NumGoroutine()),
		Help:  "Number of goroutines",
	})
}

func (mc *MetricsCollector) IncrCounter(name string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{
		Name:   name,
		Type:   MetricTypeCounter,
		Value:  value,
		Labels: labels,
	})
}

func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{
		Name:   name,
		Type:   MetricTypeGauge,
		Value:  value,
		Labels: labels,
	})
}

func (mc *MetricsCollector) RecordHistogram(name string, value float64, labels map[string]string, buckets []float64) {
	mc.RecordMetric(&Metric{
		Name:   name,
		Type:   MetricTypeHistogram,
		Value:  value,
		Labels: labels,
		Metadata: map[string]interface{}{
			"buckets": buckets,
		},
	})
}

// ObserveSince records the seconds elapsed since start as a histogram sample.
func (mc *MetricsCollector) ObserveSince(name string, start time.Time, labels map[string]string) {
	mc.RecordHistogram(name, time.Since(start).Seconds(), labels, DefaultBuckets)
}

// ExportPrometheus renders the latest sample of every series in the text
// exposition format, one HELP/TYPE header per metric name. Counters report
// their running total.
func (mc *MetricsCollector) ExportPrometheus() string {
	var b strings.Builder

	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	names := make([]string, 0, len(mc.latest))
	for name := range mc.latest {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		series := mc.latest[name]
		keys := make([]string, 0, len(series))
		for k := range series {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) == 0 {
			continue
		}

		head := series[keys[0]]
		help := head.Help
		if help == "" {
			help = fmt.Sprintf("Metric %s", name)
		}
		fmt.Fprintf(&b, "# HELP %s %s\n", name, help)
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, head.Type)

		for _, k := range keys {
			metric := series[k]
			value := metric.Value
			if metric.Type == MetricTypeCounter {
				value = mc.totals[k]
			}
			fmt.Fprintf(&b, "%s %g %d\n", k, value, metric.Timestamp.UnixMilli())
		}
	}

	return b.String()
}

func (mc *MetricsCollector) ExportJSON() (string, error) {
	data, err := json.MarshalIndent(mc.GetAllMetrics(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf(`%s="%s"`, k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func seriesKey(name string, labels map[string]string) string {
	return name + formatLabels(labels)
}
