package card

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DeckFileSuffix is the file name suffix identifying deck content files.
// The deck name is the file name with the suffix removed.
const DeckFileSuffix = ".deck.yaml"

// templateFile is the on-disk shape of one card template.
type templateFile struct {
	ID        int32  `yaml:"id"`
	Name      string `yaml:"name"`
	Type      int32  `yaml:"type"`
	Atk       int32  `yaml:"atk"`
	Def       int32  `yaml:"def"`
	Level     int32  `yaml:"level"`
	Race      int32  `yaml:"race"`
	Attribute int32  `yaml:"attribute"`
	Limit     *int8  `yaml:"limit"`
}

// deckFile is the on-disk shape of a deck: a flat list of template IDs.
type deckFile struct {
	Cards []int32 `yaml:"cards"`
}

// LoadTemplates parses a YAML list of card templates from path.
//
// Precondition: path must name a readable YAML file.
// Postcondition: Returns the parsed templates in file order or a non-nil error.
// A template without a limit receives DefaultDeckLimit.
func LoadTemplates(path string) ([]*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseTemplates(data)
}

// ParseTemplates parses YAML template data.
func ParseTemplates(data []byte) ([]*Template, error) {
	var raw []templateFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing card templates: %w", err)
	}
	out := make([]*Template, 0, len(raw))
	for _, r := range raw {
		limit := DefaultDeckLimit
		if r.Limit != nil {
			limit = *r.Limit
		}
		out = append(out, &Template{
			ID:        r.ID,
			Name:      r.Name,
			Type:      Type(r.Type),
			Attack:    r.Atk,
			Defense:   r.Def,
			Level:     r.Level,
			Race:      r.Race,
			Attribute: r.Attribute,
			DeckLimit: limit,
		})
	}
	return out, nil
}

// LoadDecks reads every *.deck.yaml file in dir.
//
// Precondition: dir must be a readable directory path.
// Postcondition: Returns deck name to template IDs (may be empty) or a non-nil error.
func LoadDecks(dir string) (map[string][]int32, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading deck dir %s: %w", dir, err)
	}
	decks := make(map[string][]int32)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), DeckFileSuffix) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var d deckFile
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("parsing deck file %s: %w", path, err)
		}
		decks[strings.TrimSuffix(e.Name(), DeckFileSuffix)] = d.Cards
	}
	return decks, nil
}

// Load builds a Registry from a template file and a deck directory.
//
// Precondition: cardsFile and decksDir must be readable.
// Postcondition: Returns a fully populated Registry or the first load/registration error.
func Load(cardsFile, decksDir string) (*Registry, error) {
	templates, err := LoadTemplates(cardsFile)
	if err != nil {
		return nil, err
	}
	reg := NewRegistry()
	for _, t := range templates {
		if err := reg.RegisterTemplate(t); err != nil {
			return nil, err
		}
	}

	decks, err := LoadDecks(decksDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(decks))
	for n := range decks {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := reg.RegisterDeck(n, decks[n]); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
