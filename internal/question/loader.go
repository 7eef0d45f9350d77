package question

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/victornm/adaptivequiz/internal/domain"
)

//go:embed seed.yaml
var defaultSeed []byte

type seedFile struct {
	Questions []domain.Question `yaml:"questions"`
}

// Parse reads a YAML question list and validates every question.
func Parse(r io.Reader) ([]domain.Question, error) {
	var f seedFile

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}

	for _, q := range f.Questions {
		if err := q.Validate(); err != nil {
			return nil, err
		}
	}

	return f.Questions, nil
}

func LoadFile(path string) ([]domain.Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(f)
}

// Default returns the built-in question set.
func Default() []domain.Question {
	qs, err := Parse(bytes.NewReader(defaultSeed))
	if err != nil {
		panic(fmt.Sprintf("question: invalid built-in seed: %v", err))
	}

	return qs
}
