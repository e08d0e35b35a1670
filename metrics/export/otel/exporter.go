package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/venn-labs/platauth"
	"github.com/venn-labs/platauth/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() platauth.MetricsSnapshot
	MirrorDropped() uint64
}

type observedCounter struct {
	id         platauth.MetricID
	instrument metric.Int64ObservableCounter
}

// Exporter bridges engine counters into an OpenTelemetry meter via
// observable instruments. Close unregisters the callback.
type Exporter struct {
	source        metricsSource
	registration  metric.Registration
	counters      []observedCounter
	mirrorDropped metric.Int64ObservableCounter
}

// NewExporter registers observable counters for the engine on meter.
func NewExporter(meter metric.Meter, engine *platauth.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource registers observable counters reading from a
// custom source.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &Exporter{
		source:   source,
		counters: make([]observedCounter, 0, len(internaldefs.CounterDefs)),
	}

	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+1)
	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	mirrorDropped, err := meter.Int64ObservableCounter(
		"platauth_audit_mirror_dropped_total",
		metric.WithDescription("Mirrored audit events dropped under backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create mirror dropped counter: %w", err)
	}
	exporter.mirrorDropped = mirrorDropped
	observables = append(observables, mirrorDropped)

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		snapshot := exporter.source.MetricsSnapshot()
		for _, c := range exporter.counters {
			observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
		}
		observer.ObserveInt64(exporter.mirrorDropped, int64(exporter.source.MirrorDropped()))
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
