package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/docportal"
	"github.com/MrEthical07/docportal/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() docportal.MetricsSnapshot
	AuditDropped() uint64
}

// sessionSource is implemented by *docportal.Store.
type sessionSource interface {
	Snapshot() docportal.Snapshot
}

type observedCounter struct {
	id         docportal.MetricID
	instrument metric.Int64ObservableCounter
}

type observedHistogram struct {
	id      docportal.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	auditDropped metric.Int64ObservableCounter
	session      *sessionGauges
}

type sessionGauges struct {
	source        sessionSource
	authenticated metric.Int64ObservableGauge
	resolving     metric.Int64ObservableGauge
	admin         metric.Int64ObservableGauge
}

// NewOTelExporter registers observable instruments on meter that read from
// store at collection time.
func NewOTelExporter(meter metric.Meter, store *docportal.Store) (*OTelExporter, error) {
	if store == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, store)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &OTelExporter{
		source:     source,
		counters:   make([]observedCounter, 0, len(internaldefs.CounterDefs)),
		histograms: make([]observedHistogram, 0, len(internaldefs.HistogramDefs)),
	}

	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)*9+1)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := observedHistogram{id: def.ID}
		for i := 0; i < len(internaldefs.HistogramBoundSuffix); i++ {
			name := def.Name + "_bucket_le_" + internaldefs.HistogramBoundSuffix[i]
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
			if err != nil {
				return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
			}
			h.buckets[i] = ins
			observables = append(observables, ins)
		}
		countName := def.Name + "_count"
		countIns, err := meter.Int64ObservableGauge(countName, metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s: %w", countName, err)
		}
		h.count = countIns
		observables = append(observables, countIns)
		exporter.histograms = append(exporter.histograms, h)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		internaldefs.AuditDroppedName,
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	if ss, ok := source.(sessionSource); ok {
		g := &sessionGauges{source: ss}
		for _, gauge := range []struct {
			name string
			help string
			dst  *metric.Int64ObservableGauge
		}{
			{internaldefs.SessionAuthenticatedName, "1 when the session holds a resolved identity.", &g.authenticated},
			{internaldefs.SessionResolvingName, "1 while the session is resolving.", &g.resolving},
			{internaldefs.SessionAdminName, "1 when the resolved identity has the admin role.", &g.admin},
		} {
			ins, err := meter.Int64ObservableGauge(gauge.name, metric.WithDescription(gauge.help))
			if err != nil {
				return nil, fmt.Errorf("create session gauge %s: %w", gauge.name, err)
			}
			*gauge.dst = ins
			observables = append(observables, ins)
		}
		exporter.session = g
	}

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		snapshot := exporter.source.MetricsSnapshot()
		for _, c := range exporter.counters {
			observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
		}
		for _, h := range exporter.histograms {
			nonCumulative := internaldefs.NormalizeBuckets(snapshot.Histograms[h.id])
			cumulative := internaldefs.CumulativeBuckets(nonCumulative)
			for i := 0; i < len(cumulative); i++ {
				observer.ObserveInt64(h.buckets[i], int64(cumulative[i]))
			}
			observer.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
		}
		observer.ObserveInt64(exporter.auditDropped, int64(exporter.source.AuditDropped()))
		if g := exporter.session; g != nil {
			authenticated, resolving, admin := internaldefs.SessionGauges(g.source.Snapshot())
			observer.ObserveInt64(g.authenticated, int64(authenticated))
			observer.ObserveInt64(g.resolving, int64(resolving))
			observer.ObserveInt64(g.admin, int64(admin))
		}
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
