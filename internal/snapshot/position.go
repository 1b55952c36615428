package snapshot

import (
	"defi-position-manager/internal/types"
)

// PositionStore keeps a bounded rolling history of position health
// observations.
type PositionStore struct {
	hist *History[types.PositionObservation]
}

func NewPositionStore(bound int) *PositionStore {
	return &PositionStore{hist: NewHistory[types.PositionObservation](bound)}
}

func (s *PositionStore) Record(obs types.PositionObservation) {
	s.hist.Append(obs)
}

// Latest returns the most recent observation or ErrNoData when the store
// is empty.
func (s *PositionStore) Latest() (types.PositionObservation, error) {
	obs, ok := s.hist.Latest()
	if !ok {
		return types.PositionObservation{}, ErrNoData
	}
	return obs, nil
}

func (s *PositionStore) Len() int {
	return s.hist.Len()
}

// Snapshot returns a copy of the full history for external readers.
func (s *PositionStore) Snapshot() []types.PositionObservation {
	return s.hist.Snapshot()
}
