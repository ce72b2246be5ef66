// Package directory finds hospitals by locality and lists their doctors.
package directory

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"hospital-appointments/api"
)

// ErrSuperseded is returned when a newer request started before this one
// finished; its result was dropped.
var ErrSuperseded = errors.New("superseded by a newer request")

// Finder is the part of the API the directory needs.
type Finder interface {
	SearchHospitals(ctx context.Context, locality string) ([]api.Hospital, error)
	ListDoctors(ctx context.Context, hospitalID api.ID) ([]api.Doctor, error)
	DoctorAvailability(ctx context.Context, doctorID api.ID) (*api.Availability, error)
}

// State is a snapshot for renderers.
type State struct {
	Locality       string
	Hospitals      []api.Hospital
	Loading        bool
	SearchErr      error
	Selected       *api.Hospital
	Doctors        []api.Doctor
	LoadingDoctors bool
	DoctorsErr     error
}

// Search holds the current result list and the selected hospital. Only the
// most recently initiated search and the most recent selection are applied.
type Search struct {
	client Finder
	logger *zap.Logger

	mu        sync.Mutex
	state     State
	searchGen uint64
	doctorGen uint64
	listeners []func(State)
}

func New(client Finder, logger *zap.Logger) *Search {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Search{client: client, logger: logger}
}

// OnChange registers fn to receive a snapshot after every state change.
func (s *Search) OnChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// State returns a snapshot.
func (s *Search) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Selected returns the hospital bookings should target.
func (s *Search) Selected() (api.Hospital, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Selected == nil {
		return api.Hospital{}, false
	}
	return *s.state.Selected, true
}

// Loading reports whether a hospital search is in flight; renderers disable
// the search control while it is.
func (s *Search) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Loading
}

// SearchHospitals replaces the result list with hospitals in locality.
func (s *Search) SearchHospitals(ctx context.Context, locality string) ([]api.Hospital, error) {
	s.mu.Lock()
	s.searchGen++
	gen := s.searchGen
	s.state.Locality = locality
	s.state.Loading = true
	s.state.SearchErr = nil
	s.emitLocked()
	s.mu.Unlock()

	s.logger.Debug("searching hospitals", zap.String("locality", locality), zap.Uint64("gen", gen))
	hospitals, err := s.client.SearchHospitals(ctx, locality)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.searchGen {
		s.logger.Debug("dropping stale hospital results", zap.Uint64("gen", gen), zap.Uint64("latest", s.searchGen))
		return hospitals, ErrSuperseded
	}
	s.state.Loading = false
	if err != nil {
		s.state.SearchErr = err
		s.emitLocked()
		return nil, err
	}
	s.state.Hospitals = hospitals
	s.emitLocked()
	return hospitals, nil
}

// SelectHospital switches the selection to h right away, clearing the old
// doctor list before the new one is fetched.
func (s *Search) SelectHospital(ctx context.Context, h api.Hospital) ([]api.Doctor, error) {
	s.mu.Lock()
	s.doctorGen++
	gen := s.doctorGen
	selected := h
	s.state.Selected = &selected
	s.state.Doctors = nil
	s.state.DoctorsErr = nil
	s.state.LoadingDoctors = true
	s.emitLocked()
	s.mu.Unlock()

	doctors, err := s.client.ListDoctors(ctx, h.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.doctorGen {
		s.logger.Debug("dropping stale doctor list", zap.String("hospital_id", h.ID.String()))
		return doctors, ErrSuperseded
	}
	s.state.LoadingDoctors = false
	if err != nil {
		s.state.DoctorsErr = err
		s.emitLocked()
		return nil, err
	}
	s.state.Doctors = doctors
	s.emitLocked()
	return doctors, nil
}

// FindHospital looks id up in the current result list.
func (s *Search) FindHospital(id api.ID) (api.Hospital, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.state.Hospitals {
		if h.ID == id {
			return h, true
		}
	}
	return api.Hospital{}, false
}

// FindDoctor looks id up in the selected hospital's doctors.
func (s *Search) FindDoctor(id api.ID) (api.Doctor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.state.Doctors {
		if d.ID == id {
			return d, true
		}
	}
	return api.Doctor{}, false
}

// Availability reports a doctor's booking summary. It does not touch state.
func (s *Search) Availability(ctx context.Context, doctorID api.ID) (*api.Availability, error) {
	return s.client.DoctorAvailability(ctx, doctorID)
}

func (s *Search) snapshotLocked() State {
	st := s.state
	st.Hospitals = append([]api.Hospital(nil), s.state.Hospitals...)
	st.Doctors = append([]api.Doctor(nil), s.state.Doctors...)
	if s.state.Selected != nil {
		h := *s.state.Selected
		st.Selected = &h
	}
	return st
}

// emitLocked runs listeners with mu held, so snapshots reach them in order.
// Listeners must not call back into Search.
func (s *Search) emitLocked() {
	if len(s.listeners) == 0 {
		return
	}
	st := s.snapshotLocked()
	for _, fn := range s.listeners {
		fn(st)
	}
}
