package sim

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Battle holds the statistics block the simulator prints after a run.
// Probabilities are in [0, 1]; scores are from the friendly player's point
// of view.
type Battle struct {
	WinProbability  float64
	TieProbability  float64
	LoseProbability float64

	MeanScore   float64
	MedianScore float64
	Percentiles []float64

	MeanDamageTaken float64
	MeanDamageDealt float64

	ExpectedHeroHealth      float64
	ExpectedEnemyHeroHealth float64

	DeathProbability      float64
	EnemyDeathProbability float64
}

// Invert returns the battle seen from the enemy's side.
func (b *Battle) Invert() *Battle {
	return &Battle{
		WinProbability:  b.LoseProbability,
		TieProbability:  b.TieProbability,
		LoseProbability: b.WinProbability,

		MeanScore:   -b.MeanScore,
		MedianScore: -b.MedianScore,

		MeanDamageTaken: b.MeanDamageDealt,
		MeanDamageDealt: b.MeanDamageTaken,

		ExpectedHeroHealth:      b.ExpectedEnemyHeroHealth,
		ExpectedEnemyHeroHealth: b.ExpectedHeroHealth,

		DeathProbability:      b.EnemyDeathProbability,
		EnemyDeathProbability: b.DeathProbability,
	}
}

var (
	errRe         = regexp.MustCompile(`Error:\s*(.*)`)
	percentilesRe = regexp.MustCompile(`percentiles:\s*([-\d.\s]+)`)
	deathRe       = map[string]*regexp.Regexp{
		"friendly": regexp.MustCompile(`your expected health afterwards:\s*(-?\d+\.?\d*),\s*(-?\d+\.?\d*)% chance to die`),
		"enemy":    regexp.MustCompile(`their expected health afterwards:\s*(-?\d+\.?\d*),\s*(-?\d+\.?\d*)% chance to die`),
	}
)

// ScanErrors extracts the `Error: ...` lines the simulator prints when it
// rejects a battle config.
func ScanErrors(output string) []string {
	var msgs []string

	for _, m := range errRe.FindAllStringSubmatch(output, -1) {
		msgs = append(msgs, strings.TrimSpace(m[1]))
	}

	return msgs
}

// ParseOutput parses the simulator's statistics block.
func ParseOutput(output string) (*Battle, error) {
	if msgs := ScanErrors(output); len(msgs) > 0 {
		return nil, errors.Errorf("simulator rejected battle config: %s",
			strings.Join(msgs, "; "))
	}

	var (
		b   Battle
		err error
	)

	get := func(name, suffix string) float64 {
		if err != nil {
			return 0
		}

		v, ferr := field(output, name, suffix)
		if ferr != nil {
			err = ferr
		}

		return v
	}

	b.WinProbability = get("win", "%") / 100
	b.TieProbability = get("tie", "%") / 100
	b.LoseProbability = get("lose", "%") / 100

	b.MeanScore = get("mean score", "")
	b.MedianScore = get("median score", "")

	b.MeanDamageTaken = get("mean damage taken", "")
	b.MeanDamageDealt = get("mean damage dealt", "")

	b.ExpectedHeroHealth = get("your expected health afterwards", "")
	b.ExpectedEnemyHeroHealth = get("their expected health afterwards", "")

	if err != nil {
		return nil, err
	}

	b.DeathProbability, err = deathChance(output, "friendly")
	if err != nil {
		return nil, err
	}

	b.EnemyDeathProbability, err = deathChance(output, "enemy")
	if err != nil {
		return nil, err
	}

	if m := percentilesRe.FindStringSubmatch(output); m != nil {
		for _, f := range strings.Fields(m[1]) {
			v, perr := strconv.ParseFloat(f, 64)
			if perr != nil {
				return nil, errors.Wrap(perr, "parsing percentiles")
			}

			b.Percentiles = append(b.Percentiles, v)
		}
	}

	return &b, nil
}

// field finds "<name>: <float><suffix>" in the output.
func field(output, name, suffix string) (float64, error) {
	pattern := regexp.QuoteMeta(name) + `:\s*(-?\d+\.?\d*)` + regexp.QuoteMeta(suffix)

	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, err
	}

	m := re.FindStringSubmatch(output)
	if m == nil {
		return 0, errors.Errorf("could not parse field %q in simulator output", name)
	}

	return strconv.ParseFloat(m[1], 64)
}

func deathChance(output, kind string) (float64, error) {
	m := deathRe[kind].FindStringSubmatch(output)
	if m == nil {
		return 0, errors.Errorf("could not find death chance for %s hero", kind)
	}

	pct, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, err
	}

	return pct / 100, nil
}
