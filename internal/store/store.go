// Package store holds append-only per-service time series.
package store

import (
	"fmt"
	"iter"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

type seriesKey struct {
	serviceID string
	metric    models.Metric
}

// series is guarded by its own lock so writers to different keys never contend.
type series struct {
	mu  sync.RWMutex
	obs []models.Observation
}

// Store is an in-memory TimeSeries store. The zero value is not usable; call New.
type Store struct {
	mu       sync.RWMutex
	series   map[seriesKey]*series
	services map[string]models.Service
}

// New constructs an empty store.
func New() *Store {
	return &Store{
		series:   make(map[seriesKey]*series),
		services: make(map[string]models.Service),
	}
}

// Register adds or replaces service metadata. History is untouched.
func (s *Store) Register(service models.Service) error {
	if strings.TrimSpace(service.ID) == "" {
		return fmt.Errorf("register service: %w: empty id", ErrInvalidObservation)
	}
	if math.IsNaN(service.SLATarget) || service.SLATarget < 0 || service.SLATarget > 100 {
		return fmt.Errorf("register service %s: sla target %.2f outside [0,100]", service.ID, service.SLATarget)
	}
	service.RiskFactors = slices.Clone(service.RiskFactors)

	s.mu.Lock()
	s.services[service.ID] = service
	s.mu.Unlock()
	return nil
}

// Service returns registered metadata for id.
func (s *Store) Service(id string) (models.Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if ok {
		svc.RiskFactors = slices.Clone(svc.RiskFactors)
	}
	return svc, ok
}

// Services lists registered services ordered by ID.
func (s *Store) Services() []models.Service {
	s.mu.RLock()
	out := make([]models.Service, 0, len(s.services))
	for _, svc := range s.services {
		svc.RiskFactors = slices.Clone(svc.RiskFactors)
		out = append(out, svc)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.Service) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Record appends obs to its (service, metric) series. The timestamp must be strictly
// after the last recorded one, otherwise an *OutOfOrderError is returned.
func (s *Store) Record(obs models.Observation) error {
	if err := validate(obs); err != nil {
		return err
	}

	ser := s.seriesFor(seriesKey{serviceID: obs.ServiceID, metric: obs.Metric}, true)
	ser.mu.Lock()
	defer ser.mu.Unlock()

	if n := len(ser.obs); n > 0 {
		last := ser.obs[n-1].Timestamp
		if !obs.Timestamp.After(last) {
			return &OutOfOrderError{
				ServiceID: obs.ServiceID,
				Metric:    obs.Metric,
				Timestamp: obs.Timestamp,
				Last:      last,
			}
		}
	}
	ser.obs = append(ser.obs, obs)
	return nil
}

// History yields observations with Timestamp >= since (zero since means all) in
// ascending order. The sequence is bound to the series as of the call and can be
// ranged over repeatedly. Unknown keys yield nothing.
func (s *Store) History(serviceID string, metric models.Metric, since time.Time) iter.Seq[models.Observation] {
	snapshot := s.snapshot(serviceID, metric)
	start := 0
	if !since.IsZero() {
		start, _ = slices.BinarySearchFunc(snapshot, since, func(o models.Observation, t time.Time) int {
			return o.Timestamp.Compare(t)
		})
	}
	window := snapshot[start:]

	return func(yield func(models.Observation) bool) {
		for _, obs := range window {
			if !yield(obs) {
				return
			}
		}
	}
}

// Snapshot collects History into a slice.
func (s *Store) Snapshot(serviceID string, metric models.Metric, since time.Time) []models.Observation {
	return slices.Collect(s.History(serviceID, metric, since))
}

// Last returns the most recent observation of a series.
func (s *Store) Last(serviceID string, metric models.Metric) (models.Observation, bool) {
	snapshot := s.snapshot(serviceID, metric)
	if len(snapshot) == 0 {
		return models.Observation{}, false
	}
	return snapshot[len(snapshot)-1], true
}

// Len returns the number of observations in a series.
func (s *Store) Len(serviceID string, metric models.Metric) int {
	return len(s.snapshot(serviceID, metric))
}

// snapshot captures the current slice header. Appends never rewrite existing elements,
// so the captured prefix stays consistent after the lock is released.
func (s *Store) snapshot(serviceID string, metric models.Metric) []models.Observation {
	ser := s.seriesFor(seriesKey{serviceID: serviceID, metric: metric}, false)
	if ser == nil {
		return nil
	}
	ser.mu.RLock()
	defer ser.mu.RUnlock()
	return ser.obs[:len(ser.obs):len(ser.obs)]
}

func (s *Store) seriesFor(key seriesKey, create bool) *series {
	s.mu.RLock()
	ser, ok := s.series[key]
	s.mu.RUnlock()
	if ok || !create {
		return ser
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ser, ok = s.series[key]; ok {
		return ser
	}
	ser = &series{}
	s.series[key] = ser
	return ser
}

func validate(obs models.Observation) error {
	switch {
	case strings.TrimSpace(obs.ServiceID) == "":
		return fmt.Errorf("%w: empty service id", ErrInvalidObservation)
	case !obs.Metric.Valid():
		return fmt.Errorf("%w: unknown metric %q", ErrInvalidObservation, obs.Metric)
	case obs.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrInvalidObservation)
	case math.IsNaN(obs.Value) || math.IsInf(obs.Value, 0):
		return fmt.Errorf("%w: non-finite value", ErrInvalidObservation)
	}
	return nil
}
