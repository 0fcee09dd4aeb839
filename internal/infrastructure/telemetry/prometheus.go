package telemetry

import (
	"fmt"
	"sort"
	"strings"
)

// Names of the critical metrics that must alert if non-zero in a window.
const (
	MetricFlowMismatchTotal         = "flow_mismatch_total"
	MetricZeroTechniquesTotal       = "zero_techniques_total"
	MetricBuilderInvariantViolation = "builder_invariant_violations"
	MetricCanaryTestFailed          = "canary_test_failed"
	MetricReceiptInvalidTotal       = "receipt_invalid_total"
	MetricBaselineResponses         = "baseline_responses"
)

// RenderPrometheus renders the registry in the Prometheus text exposition
// format. Histogram summaries are exported as <name>_count, <name>_sum, and
// quantile-labeled gauges.
func (r *Registry) RenderPrometheus() string {
	snap := r.Snapshot()

	var b strings.Builder

	names := make([]string, 0, len(snap.Counters))
	for name := range snap.Counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "# TYPE %s counter\n", name)
		fmt.Fprintf(&b, "%s %d\n", name, snap.Counters[name])
	}

	names = names[:0]
	for name := range snap.Gauges {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "# TYPE %s gauge\n", name)
		fmt.Fprintf(&b, "%s %g\n", name, snap.Gauges[name])
	}

	names = names[:0]
	for name := range snap.Histograms {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := snap.Histograms[name]
		fmt.Fprintf(&b, "# TYPE %s summary\n", name)
		fmt.Fprintf(&b, "%s{quantile=\"0.5\"} %g\n", name, s.P50)
		fmt.Fprintf(&b, "%s{quantile=\"0.95\"} %g\n", name, s.P95)
		fmt.Fprintf(&b, "%s{quantile=\"0.99\"} %g\n", name, s.P99)
		fmt.Fprintf(&b, "%s_sum %g\n", name, s.Sum)
		fmt.Fprintf(&b, "%s_count %d\n", name, s.Count)
	}

	return b.String()
}
