package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/venn-labs/platauth"
	"github.com/venn-labs/platauth/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() platauth.MetricsSnapshot
	MirrorDropped() uint64
}

// Exporter renders engine counters in Prometheus text exposition format.
type Exporter struct {
	source metricsSource
}

// NewExporter reads metrics from the given engine.
func NewExporter(engine *platauth.Engine) *Exporter {
	return &Exporter{source: engine}
}

// NewExporterFromSource reads metrics from a custom source, typically a
// test fake.
func NewExporterFromSource(source metricsSource) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the rendered metrics over HTTP.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render writes the current counters in text exposition format. Disabled
// metrics render as an empty document.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.MirrorDropped()
	if len(snapshot.Counters) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, def := range internaldefs.CounterDefs {
		writeCounter(&b, def.Name, def.Help, snapshot.Counters[def.ID])
	}
	writeCounter(&b, "platauth_audit_mirror_dropped_total", "Mirrored audit events dropped under backpressure.", dropped)

	return b.String()
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" counter\n")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
