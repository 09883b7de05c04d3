package game

import (
	"math/rand"
	"time"
)

// roller is the source of randomness for the resolvers. Tests swap in a
// scripted implementation to force specific branches.
type roller interface {
	// Float returns a uniform value in [0, 1).
	Float() float64
	// Chance reports true with probability p.
	Chance(p float64) bool
	// Between returns a uniform integer in [min, max], inclusive.
	Between(min, max int) int
	// Pick returns a uniform index in [0, n).
	Pick(n int) int
}

// DiceRoller is the production roller backed by a seeded generator.
type DiceRoller struct {
	rng *rand.Rand
}

// NewDiceRoller creates a dice roller with a time-seeded generator.
func NewDiceRoller() *DiceRoller {
	return &DiceRoller{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (d *DiceRoller) Float() float64 {
	return d.rng.Float64()
}

func (d *DiceRoller) Chance(p float64) bool {
	return d.rng.Float64() < p
}

func (d *DiceRoller) Between(min, max int) int {
	if max <= min {
		return min
	}
	return min + d.rng.Intn(max-min+1)
}

func (d *DiceRoller) Pick(n int) int {
	if n <= 1 {
		return 0
	}
	return d.rng.Intn(n)
}
