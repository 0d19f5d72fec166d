// Package seed loads the question catalogue from YAML.
package seed

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/checkin/internal/domain"
)

//go:embed questions.yaml
var defaultCatalogue []byte

// ErrInvalidCatalogue is returned for catalogues that cannot be seeded.
var ErrInvalidCatalogue = errors.New("invalid question catalogue")

type entry struct {
	Order  int    `yaml:"order"`
	Text   string `yaml:"text"`
	Active *bool  `yaml:"active,omitempty"`
}

type catalogue struct {
	Questions []entry `yaml:"questions"`
}

// Load reads the catalogue at path, or the built-in one when path is empty.
func Load(path string) ([]domain.Question, error) {
	if path == "" {
		return Parse(defaultCatalogue)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question catalogue: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalogue. Questions are active unless
// stated otherwise and are returned sorted by order.
func Parse(data []byte) ([]domain.Question, error) {
	var c catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalogue, err)
	}
	if len(c.Questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", ErrInvalidCatalogue)
	}

	seen := make(map[int]bool, len(c.Questions))
	questions := make([]domain.Question, 0, len(c.Questions))
	for _, e := range c.Questions {
		text := strings.TrimSpace(e.Text)
		switch {
		case e.Order <= 0:
			return nil, fmt.Errorf("%w: order must be positive, got %d", ErrInvalidCatalogue, e.Order)
		case seen[e.Order]:
			return nil, fmt.Errorf("%w: duplicate order %d", ErrInvalidCatalogue, e.Order)
		case text == "":
			return nil, fmt.Errorf("%w: question %d has no text", ErrInvalidCatalogue, e.Order)
		}
		seen[e.Order] = true

		active := true
		if e.Active != nil {
			active = *e.Active
		}
		questions = append(questions, domain.Question{Text: text, Active: active, OrderNum: e.Order})
	}

	sort.Slice(questions, func(i, j int) bool { return questions[i].OrderNum < questions[j].OrderNum })
	return questions, nil
}

// Encode renders questions in catalogue form so they can be edited and
// loaded back with Load.
func Encode(questions []*domain.Question) ([]byte, error) {
	c := catalogue{Questions: make([]entry, 0, len(questions))}
	for _, q := range questions {
		active := q.Active
		c.Questions = append(c.Questions, entry{Order: q.OrderNum, Text: q.Text, Active: &active})
	}
	data, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("encode question catalogue: %w", err)
	}
	return data, nil
}
