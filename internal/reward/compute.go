package reward

import (
	"fmt"
	"math"
	"time"
)

// Reward curve constants.
const (
	// CycleLength is the window after which a server-side award fully
	// matures.
	CycleLength = 15 * time.Minute

	// MaxPoints is the award for a full cycle.
	MaxPoints = 25.0

	// BonusChance is the per-tick probability of a cosmetic bonus draw.
	BonusChance = 0.10

	// BonusMax bounds the uniform bonus draw.
	BonusMax = 2.0
)

// CountdownStale is reported when no estimate can be derived: either no
// update has ever been recorded, or the last one is older than a full cycle.
const CountdownStale = "Calculating..."

// Rand is the random source consumed by Compute. *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Result holds the derived reward fields.
type Result struct {
	Countdown       string
	PotentialPoints float64
}

// Compute derives the countdown and potential points estimate from the last
// server update time. hasUpdate is false when the store has never recorded
// an update. Pure given (now, lastUpdated, hasUpdate) and the rng draws.
func Compute(now, lastUpdated time.Time, hasUpdate bool, rng Rand) Result {
	if !hasUpdate {
		return Result{Countdown: CountdownStale, PotentialPoints: 0}
	}

	elapsed := now.Sub(lastUpdated)
	if elapsed < 0 {
		elapsed = 0
	}

	if elapsed >= CycleLength {
		return Result{Countdown: CountdownStale, PotentialPoints: MaxPoints}
	}

	remaining := CycleLength - elapsed
	minutes := int(remaining.Minutes())
	seconds := int(remaining.Seconds()) % 60

	points := elapsed.Seconds() / CycleLength.Seconds() * MaxPoints
	if rng.Float64() < BonusChance {
		points += rng.Float64() * BonusMax
	}
	if points > MaxPoints {
		points = MaxPoints
	}

	return Result{
		Countdown:       fmt.Sprintf("%dm %ds", minutes, seconds),
		PotentialPoints: math.Round(points*100) / 100,
	}
}
