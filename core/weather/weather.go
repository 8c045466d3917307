// Package weather stores observed and forecast weather per timeslot for
// the capacity models.
package weather

import (
	"sync"

	"github.com/gridwise/tariffsim/core/model"
)

// Service is the read side used by capacity models.
type Service interface {
	// Report returns the observed weather for a timeslot.
	Report(serial int) (model.WeatherReport, bool)
	// Forecast returns the prediction issued at issuedSerial for
	// offset hours ahead.
	Forecast(issuedSerial, offset int) (model.WeatherForecast, bool)
}

// Store is an in-memory Service fed by the scenario or a live feed.
// Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	reports   map[int]model.WeatherReport
	forecasts map[int]map[int]model.WeatherForecast
}

// NewStore returns an empty weather store.
func NewStore() *Store {
	return &Store{
		reports:   make(map[int]model.WeatherReport),
		forecasts: make(map[int]map[int]model.WeatherForecast),
	}
}

// AddReport records the observed weather for a timeslot.
func (s *Store) AddReport(r model.WeatherReport) {
	s.mu.Lock()
	s.reports[r.TimeslotSerial] = r
	s.mu.Unlock()
}

// AddForecast records a forecast under its issue slot and offset.
func (s *Store) AddForecast(f model.WeatherForecast) {
	s.mu.Lock()
	if s.forecasts[f.IssuedSerial] == nil {
		s.forecasts[f.IssuedSerial] = make(map[int]model.WeatherForecast)
	}
	s.forecasts[f.IssuedSerial][f.OffsetHours] = f
	s.mu.Unlock()
}

// Report implements Service.
func (s *Store) Report(serial int) (model.WeatherReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[serial]
	return r, ok
}

// Forecast implements Service. When no forecast was issued, an observed
// report for the target slot doubles as a perfect forecast.
func (s *Store) Forecast(issuedSerial, offset int) (model.WeatherForecast, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if byOffset, ok := s.forecasts[issuedSerial]; ok {
		if f, ok := byOffset[offset]; ok {
			return f, true
		}
	}
	if r, ok := s.reports[issuedSerial+offset]; ok {
		return model.WeatherForecast{
			IssuedSerial:  issuedSerial,
			OffsetHours:   offset,
			Temperature:   r.Temperature,
			WindSpeed:     r.WindSpeed,
			WindDirection: r.WindDirection,
			CloudCover:    r.CloudCover,
		}, true
	}
	return model.WeatherForecast{}, false
}
