package anomaly

import (
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/synaptecltd/evbattery/telemetry"
)

// Container is an ordered collection of faults. Order matters: faults draw
// from the same random generator in turn, so reordering changes the output.
type Container []AnomalyInterface

// AnomalyInterface is the interface for all fault types (spikes, imbalance, etc).
type AnomalyInterface interface {
	TypeAsString() string // Returns the fault type as a string
	GetID() uuid.UUID     // Returns the ID assigned when the fault was added to a container
	EpisodeCount(int) int // Returns the number of episodes requested for a series of the given length
	setID(uuid.UUID)      // Assigns the fault ID

	// Perturbs the series in place and returns the episodes applied.
	Inject(s *telemetry.Series, r *rand.Rand) []Episode
}

// Episode records one contiguous perturbation applied by a fault. Episodes are
// returned for logging and testing; they are never written into the series.
type Episode struct {
	FaultID uuid.UUID
	Type    string
	Columns []telemetry.Column
	Start   int // first perturbed row
	End     int // one past the last perturbed row
}

// Len returns the number of rows perturbed by the episode.
func (e Episode) Len() int {
	return e.End - e.Start
}

// InjectAll applies every fault in order and returns all episodes applied.
func (c Container) InjectAll(s *telemetry.Series, r *rand.Rand) []Episode {
	var episodes []Episode
	for _, a := range c {
		episodes = append(episodes, a.Inject(s, r)...)
	}
	return episodes
}

// Add fault to container with a UUID and returns the UUID.
func (c *Container) AddAnomaly(anomaly AnomalyInterface) uuid.UUID {
	id := uuid.New()
	anomaly.setID(id)
	*c = append(*c, anomaly)
	return id
}

// Returns the fault with the given ID, or nil if it is not in the container.
func (c Container) Get(id uuid.UUID) AnomalyInterface {
	for _, a := range c {
		if a.GetID() == id {
			return a
		}
	}
	return nil
}
