package metrics

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordTimeslot forwards the record to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordTimeslot(stats TimeslotStats) error {
	for _, s := range m.Sinks {
		if err := s.RecordTimeslot(stats); err != nil {
			return err
		}
	}
	return nil
}

// RecordTariffEvent forwards tariff lifecycle events when supported.
func (m *MultiSink) RecordTariffEvent(ev TariffEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(TariffEventRecorder); ok {
			if err := rec.RecordTariffEvent(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordSubscriptionMove forwards population transfers when supported.
func (m *MultiSink) RecordSubscriptionMove(mv SubscriptionMove) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(SubscriptionMoveRecorder); ok {
			if err := rec.RecordSubscriptionMove(mv); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordPopulation forwards population snapshots when supported.
func (m *MultiSink) RecordPopulation(snap PopulationSnapshot) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(PopulationRecorder); ok {
			if err := rec.RecordPopulation(snap); err != nil {
				return err
			}
		}
	}
	return nil
}
