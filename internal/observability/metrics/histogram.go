package metrics

import (
	"fmt"
	"strconv"
	"strings"
)

var defaultBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram() *histogram {
	return &histogram{
		buckets: defaultBuckets,
		counts:  make([]uint64, len(defaultBuckets)),
	}
}

// observe 只累加第一个命中的桶，渲染时再做累计。
func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			h.counts[idx]++
			return
		}
	}
}

func (h *histogram) clone() *histogram {
	return &histogram{
		buckets: h.buckets,
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

// render writes the cumulative bucket series. labels is either empty or a
// comma terminated label list such as `handler="x",`.
func (h *histogram) render(b *strings.Builder, name, labels string) {
	var cumulative uint64
	for idx, bound := range h.buckets {
		cumulative += h.counts[idx]
		fmt.Fprintf(b, "%s_bucket{%sle=\"%s\"} %d\n", name, labels, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(b, "%s_bucket{%sle=\"+Inf\"} %d\n", name, labels, h.count)
	trimmed := strings.TrimSuffix(labels, ",")
	if trimmed != "" {
		trimmed = "{" + trimmed + "}"
	}
	fmt.Fprintf(b, "%s_sum%s %s\n", name, trimmed, formatFloat(h.sum))
	fmt.Fprintf(b, "%s_count%s %d\n", name, trimmed, h.count)
}

func writeHeader(b *strings.Builder, name, kind, help string) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, kind)
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
