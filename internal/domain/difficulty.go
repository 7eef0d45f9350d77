package domain

import (
	"fmt"
)

// Difficulty is a question tier. Tiers are totally ordered: easy < medium < hard.
type Difficulty uint8

const (
	DifficultyEasy Difficulty = iota + 1
	DifficultyMedium
	DifficultyHard
)

// InitialDifficulty is the tier of the first question of every session.
const InitialDifficulty = DifficultyMedium

var difficultyNames = map[Difficulty]string{
	DifficultyEasy:   "easy",
	DifficultyMedium: "medium",
	DifficultyHard:   "hard",
}

// Difficulties lists all tiers from easiest to hardest.
func Difficulties() []Difficulty {
	return []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}
}

func ParseDifficulty(s string) (Difficulty, error) {
	for d, name := range difficultyNames {
		if name == s {
			return d, nil
		}
	}

	return 0, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidArgument, s)
}

func (d Difficulty) Valid() bool {
	return d >= DifficultyEasy && d <= DifficultyHard
}

func (d Difficulty) String() string {
	if name, ok := difficultyNames[d]; ok {
		return name
	}

	return fmt.Sprintf("difficulty(%d)", uint8(d))
}

func (d Difficulty) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("marshal %s", d)
	}

	return []byte(d.String()), nil
}

func (d *Difficulty) UnmarshalText(b []byte) error {
	v, err := ParseDifficulty(string(b))
	if err != nil {
		return err
	}

	*d = v
	return nil
}

// Points is the score awarded for a correct answer at this tier.
func (d Difficulty) Points() int {
	return int(d)
}

// Harder returns the next tier up, saturating at hard.
func (d Difficulty) Harder() Difficulty {
	if d >= DifficultyHard {
		return DifficultyHard
	}

	return d + 1
}

// Easier returns the next tier down, saturating at easy.
func (d Difficulty) Easier() Difficulty {
	if d <= DifficultyEasy {
		return DifficultyEasy
	}

	return d - 1
}

// NextDifficulty moves one tier up after a correct answer and one tier down after an incorrect one.
func NextDifficulty(current Difficulty, wasCorrect bool) Difficulty {
	if wasCorrect {
		return current.Harder()
	}

	return current.Easier()
}

// Nearest returns the other tiers ordered by distance from d, easier first on ties.
func (d Difficulty) Nearest() []Difficulty {
	var out []Difficulty
	for dist := 1; dist < len(difficultyNames); dist++ {
		if lo := int(d) - dist; lo >= int(DifficultyEasy) {
			out = append(out, Difficulty(lo))
		}
		if hi := int(d) + dist; hi <= int(DifficultyHard) {
			out = append(out, Difficulty(hi))
		}
	}

	return out
}
