package llm

import "math/rand/v2"

var (
	genders = []string{"male", "female"}

	species = []string{
		"humanoid", "robot", "insectoid", "beast", "amphibian", "reptilian", "animalistic",
		"monster", "cyborg", "mutant", "mineral based", "plant based", "rock based",
	}

	archetypes = []string{
		"elder alien", "cosmic sage", "dark overlord", "bio-mechanical alien", "trickster alien",
		"impish being", "diplomatic alien", "alien rockstar", "alien celebrity", "silent observer",
		"space pirate", "galactic emperor", "galactic royal", "alien supermodel", "space vampire",
		"alien zombie", "alien supersoldier", "mad scientist", "galactic divine being", "galactic demon",
	}
)

// Traits seeds the look of a generated character.
type Traits struct {
	Gender    string
	Species   string
	Archetype string
}

// Randomizer picks Traits. A nil rng uses the global source.
type Randomizer struct {
	rng *rand.Rand
}

func NewRandomizer(rng *rand.Rand) *Randomizer {
	return &Randomizer{rng: rng}
}

func (r *Randomizer) Pick() Traits {
	return Traits{
		Gender:    r.choice(genders),
		Species:   r.choice(species),
		Archetype: r.choice(archetypes),
	}
}

func (r *Randomizer) choice(options []string) string {
	if r == nil || r.rng == nil {
		return options[rand.IntN(len(options))]
	}
	return options[r.rng.IntN(len(options))]
}
