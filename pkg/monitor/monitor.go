package monitor

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/wardenhq/warden/pkg/checker"
	"github.com/wardenhq/warden/pkg/events"
	"github.com/wardenhq/warden/pkg/log"
	"github.com/wardenhq/warden/pkg/metrics"
	"github.com/wardenhq/warden/pkg/subject"
	"github.com/wardenhq/warden/pkg/ticket"
	"github.com/wardenhq/warden/pkg/types"
)

// Config wires one monitor loop
type Config struct {
	Source         subject.Source
	Checker        *checker.Checker
	Store          ticket.Store
	Broker         *events.Broker // optional
	Interval       time.Duration
	ObserveTimeout time.Duration
}

// Monitor drives the observe-check-reconcile cycle for one subject on
// a fixed interval. It is the detection backbone: any stage may fail
// transiently and the loop logs it and carries on with the next cycle
// rather than terminating. One monitor instance runs per subject;
// instances share nothing but the ticket store.
type Monitor struct {
	source         subject.Source
	checker        *checker.Checker
	store          ticket.Store
	broker         *events.Broker
	interval       time.Duration
	observeTimeout time.Duration
	logger         zerolog.Logger

	component    string
	failedCycles int
}

// unhealthyAfter is how many consecutive failed cycles it takes before
// the monitor reports its component unhealthy. A single transient
// failure is normal operation; a streak means the subject or the store
// is genuinely unreachable.
const unhealthyAfter = 3

// New creates a monitor for one subject
func New(cfg Config) *Monitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	observeTimeout := cfg.ObserveTimeout
	if observeTimeout <= 0 || observeTimeout > interval {
		// A hanging observation must not stall the loop past its interval
		observeTimeout = interval
	}
	return &Monitor{
		source:         cfg.Source,
		checker:        cfg.Checker,
		store:          cfg.Store,
		broker:         cfg.Broker,
		interval:       interval,
		observeTimeout: observeTimeout,
		logger:         log.WithSubject(cfg.Source.Name()),
		component:      "monitor:" + cfg.Source.Name(),
	}
}

// Run executes cycles until the context is cancelled. Cancellation is
// honored at the sleep boundary: a cycle already in flight runs to
// completion, bounded by the observation timeout.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info().Dur("interval", m.interval).Msg("monitor started")
	metrics.RegisterCriticalComponent(m.component, true, "")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// First cycle immediately, then on the interval
	m.RunCycle(ctx)

	for {
		select {
		case <-ticker.C:
			m.RunCycle(ctx)
		case <-ctx.Done():
			m.logger.Info().Msg("monitor stopped")
			return
		}
	}
}

// RunCycle performs one observe-check-reconcile pass. Failures in one
// stage abandon the cycle (observation) or skip the affected ticket
// (storage); either way the condition is re-detected next cycle.
func (m *Monitor) RunCycle(ctx context.Context) {
	subjectName := m.source.Name()
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.MonitorCycleDuration.WithLabelValues(subjectName))

	octx, cancel := context.WithTimeout(ctx, m.observeTimeout)
	obs, err := m.source.Observe(octx)
	cancel()
	if err != nil {
		m.logger.Warn().Err(err).Msg("observation failed, skipping cycle")
		metrics.MonitorCyclesTotal.WithLabelValues(subjectName, "observe_failed").Inc()
		m.reportCycle(false, "observation failing")
		return
	}

	violations := m.checker.Check(obs)
	m.recordViolationGauges(subjectName, violations)

	// Violations from the same cycle share a batch key for downstream
	// correlation; it has no effect on dedup or resolution
	batchKey := obs.ObservedAt.UTC().Format(time.RFC3339)

	// The active set is what the checker emitted, not what was stored:
	// a failed upsert must not make the key look recovered to the
	// reconcile step below
	activeKeys := make(map[string]bool, len(violations))
	for _, v := range violations {
		activeKeys[v.Key()] = true
	}

	for _, v := range violations {
		t, created, err := m.store.Upsert(v, batchKey)
		if err != nil {
			m.logger.Error().Err(err).Str("violation_key", v.Key()).
				Msg("failed to upsert ticket, will retry next cycle")
			continue
		}

		if created {
			metrics.TicketsCreatedTotal.Inc()
			m.logger.Warn().
				Str("ticket_id", t.ID).
				Str("invariant", t.InvariantName).
				Str("entity_id", t.EntityID).
				Str("severity", string(t.Severity)).
				Msg("ticket opened")
			m.publish(events.EventTicketCreated, t, v.Message)
		} else {
			m.logger.Debug().
				Str("ticket_id", t.ID).
				Int("occurrences", t.OccurrenceCount).
				Msg("ticket refreshed")
		}
	}

	resolved, err := m.store.Reconcile(activeKeys)
	if err != nil {
		m.logger.Error().Err(err).Msg("reconcile failed, will retry next cycle")
		metrics.MonitorCyclesTotal.WithLabelValues(subjectName, "reconcile_failed").Inc()
		m.reportCycle(false, "reconcile failing")
		return
	}
	for _, t := range resolved {
		metrics.TicketsResolvedTotal.Inc()
		m.logger.Info().
			Str("ticket_id", t.ID).
			Str("invariant", t.InvariantName).
			Int("occurrences", t.OccurrenceCount).
			Msg("ticket auto-resolved")
		m.publish(events.EventTicketResolved, t, "")
	}

	m.updateOpenGauge()
	metrics.MonitorCyclesTotal.WithLabelValues(subjectName, "ok").Inc()
	m.reportCycle(true, "")

	if m.broker != nil {
		m.broker.Publish(&events.Event{
			Type:    events.EventCycleCompleted,
			Subject: subjectName,
			Metadata: map[string]string{
				"batch_key":  batchKey,
				"violations": strconv.Itoa(len(violations)),
				"resolved":   strconv.Itoa(len(resolved)),
			},
		})
	}
}

// reportCycle feeds the cycle outcome into the component health
// registry so /healthz and /readyz reflect a wedged loop
func (m *Monitor) reportCycle(ok bool, reason string) {
	if ok {
		m.failedCycles = 0
		metrics.RegisterComponent(m.component, true, "")
		return
	}
	m.failedCycles++
	if m.failedCycles >= unhealthyAfter {
		metrics.RegisterComponent(m.component, false, reason)
	}
}

func (m *Monitor) publish(eventType events.EventType, t *types.Ticket, message string) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Event{
		Type:     eventType,
		Subject:  m.source.Name(),
		TicketID: t.ID,
		Message:  message,
		Metadata: map[string]string{
			"invariant":     t.InvariantName,
			"violation_key": t.ViolationKey,
			"severity":      string(t.Severity),
		},
	})
}

func (m *Monitor) recordViolationGauges(subjectName string, violations []*types.Violation) {
	counts := map[types.Severity]int{
		types.SeverityCritical: 0,
		types.SeverityWarning:  0,
		types.SeverityInfo:     0,
	}
	for _, v := range violations {
		counts[v.Severity]++
	}
	for sev, n := range counts {
		metrics.ViolationsObserved.WithLabelValues(subjectName, string(sev)).Set(float64(n))
	}
}

func (m *Monitor) updateOpenGauge() {
	tickets, err := m.store.List("")
	if err != nil {
		return
	}
	open := 0
	for _, t := range tickets {
		if !t.Resolved() {
			open++
		}
	}
	metrics.TicketsOpen.Set(float64(open))
}
