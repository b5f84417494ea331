package pipeline

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-seeder/internal/domain"
)

const (
	minLeadsPerStorm = 2
	maxLeadsPerStorm = 10
	leadOffsetDegree = 0.05
)

// LeadGenerator fabricates property leads scattered around storms. Output is
// fully determined by the seed and the clock.
type LeadGenerator struct {
	src        *rand.ChaCha8
	rng        *rand.Rand
	clock      clockwork.Clock
	stormLimit int
}

// NewLeadGenerator creates a generator for the first stormLimit storms that
// have coordinates. A zero seed is replaced by one derived from the clock.
func NewLeadGenerator(seed uint64, clock clockwork.Clock, stormLimit int) *LeadGenerator {
	if seed == 0 {
		seed = uint64(clock.Now().UnixNano())
	}
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:8], seed)
	src := rand.NewChaCha8(key)

	return &LeadGenerator{
		src:        src,
		rng:        rand.New(src),
		clock:      clock,
		stormLimit: stormLimit,
	}
}

// Rand exposes the generator's random source so fabricated storm fields come
// from the same seed.
func (g *LeadGenerator) Rand() *rand.Rand {
	return g.rng
}

// Generate returns 2 to 10 leads for each eligible storm, in storm order.
func (g *LeadGenerator) Generate(storms []domain.StormRecord) ([]domain.Lead, error) {
	createdAt := g.clock.Now().UTC().Format(time.RFC3339)

	var leads []domain.Lead
	used := 0
	for _, storm := range storms {
		if used == g.stormLimit {
			break
		}
		if storm.Latitude == nil || storm.Longitude == nil {
			continue
		}
		used++

		n := g.between(minLeadsPerStorm, maxLeadsPerStorm)
		for range n {
			lead, err := g.lead(storm, createdAt)
			if err != nil {
				return nil, err
			}
			leads = append(leads, lead)
		}
	}
	return leads, nil
}

func (g *LeadGenerator) lead(storm domain.StormRecord, createdAt string) (domain.Lead, error) {
	id, err := uuid.NewRandomFromReader(g.src)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("lead id: %w", err)
	}

	return domain.Lead{
		ID:             id.String(),
		StormID:        storm.EventID,
		OwnerName:      fmt.Sprintf("Property Owner %d", g.between(1000, 9999)),
		Address:        fmt.Sprintf("%d Main St", g.between(100, 9999)),
		City:           storm.County,
		State:          storm.State,
		Zip:            fmt.Sprintf("%05d", g.between(10000, 99999)),
		Phone:          fmt.Sprintf("(%d) %d-%d", g.between(200, 999), g.between(200, 999), g.between(1000, 9999)),
		Email:          fmt.Sprintf("owner%d@example.com", g.between(1000, 9999)),
		Latitude:       *storm.Latitude + g.offset(),
		Longitude:      *storm.Longitude + g.offset(),
		LeadScore:      g.between(30, 100),
		Status:         domain.LeadStatuses[g.rng.IntN(len(domain.LeadStatuses))],
		DamageSeverity: domain.DamageSeverities[g.rng.IntN(len(domain.DamageSeverities))],
		RoofAge:        g.between(5, 30),
		PropertyValue:  g.between(150_000, 750_000),
		Notes:          fmt.Sprintf("Generated from %s storm event", storm.Name),
		CreatedAt:      createdAt,
	}, nil
}

func (g *LeadGenerator) between(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo+1)
}

func (g *LeadGenerator) offset() float64 {
	return (g.rng.Float64()*2 - 1) * leadOffsetDegree
}
