// Package catalog loads the achievement catalog from YAML and seeds it into the database.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"

	"github.com/aimd54/sales-quest/internal/models"
	"github.com/aimd54/sales-quest/pkg/logger"
)

// ErrInvalidCatalog is returned when a catalog file fails validation.
var ErrInvalidCatalog = errors.New("invalid achievement catalog")

// Entry is one achievement as written in the catalog file.
type Entry struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Icon        string `yaml:"icon"`
	Requirement struct {
		Type  string `yaml:"type"`
		Value int64  `yaml:"value"`
	} `yaml:"requirement"`
	Reward struct {
		XP    int64 `yaml:"xp"`
		Coins int64 `yaml:"coins"`
	} `yaml:"reward"`
	Active *bool `yaml:"active"`
}

type file struct {
	Achievements []Entry `yaml:"achievements"`
}

// Upserter stores catalog entries keyed by code.
type Upserter interface {
	Upsert(ctx context.Context, achievement *models.Achievement) error
}

// Load reads and validates the catalog file at path.
func Load(path string) ([]models.Achievement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog. Entries keep file order as their sort order,
// codes default to the slugified name and entries are active unless stated.
func Parse(data []byte) ([]models.Achievement, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	seen := make(map[string]bool, len(f.Achievements))
	achievements := make([]models.Achievement, 0, len(f.Achievements))
	for i, e := range f.Achievements {
		a, err := e.toModel(i)
		if err != nil {
			return nil, err
		}
		if seen[a.Code] {
			return nil, fmt.Errorf("%w: duplicate code %q", ErrInvalidCatalog, a.Code)
		}
		seen[a.Code] = true
		achievements = append(achievements, a)
	}
	return achievements, nil
}

func (e Entry) toModel(index int) (models.Achievement, error) {
	if e.Name == "" {
		return models.Achievement{}, fmt.Errorf("%w: entry %d has no name", ErrInvalidCatalog, index)
	}

	code := e.Code
	if code == "" {
		code = slug.Make(e.Name)
	}
	if !slug.IsSlug(code) {
		return models.Achievement{}, fmt.Errorf("%w: code %q is not a slug", ErrInvalidCatalog, code)
	}
	if !models.ValidRequirementType(e.Requirement.Type) {
		return models.Achievement{}, fmt.Errorf("%w: %s: unknown requirement type %q", ErrInvalidCatalog, code, e.Requirement.Type)
	}
	if e.Requirement.Value < 0 || e.Reward.XP < 0 || e.Reward.Coins < 0 {
		return models.Achievement{}, fmt.Errorf("%w: %s: negative requirement or reward", ErrInvalidCatalog, code)
	}

	active := true
	if e.Active != nil {
		active = *e.Active
	}

	return models.Achievement{
		Code:             code,
		Name:             e.Name,
		Description:      e.Description,
		Icon:             e.Icon,
		RequirementType:  e.Requirement.Type,
		RequirementValue: e.Requirement.Value,
		XPReward:         e.Reward.XP,
		CoinsReward:      e.Reward.Coins,
		IsActive:         active,
		SortOrder:        index,
	}, nil
}

// Seed upserts every achievement. Earned records are never touched, so
// deactivating an entry keeps it with its holders.
func Seed(ctx context.Context, repo Upserter, achievements []models.Achievement, log *logger.Logger) (int, error) {
	seeded := 0
	for i := range achievements {
		if err := repo.Upsert(ctx, &achievements[i]); err != nil {
			return seeded, fmt.Errorf("failed to seed achievement %s: %w", achievements[i].Code, err)
		}
		seeded++
	}

	log.Info().Int("achievements", seeded).Msg("Achievement catalog seeded")
	return seeded, nil
}

// LoadAndSeed loads the catalog file and seeds it. An empty path is a no-op.
func LoadAndSeed(ctx context.Context, path string, repo Upserter, log *logger.Logger) (int, error) {
	if path == "" {
		log.Info().Msg("No achievement catalog file configured, keeping stored catalog")
		return 0, nil
	}
	achievements, err := Load(path)
	if err != nil {
		return 0, err
	}
	return Seed(ctx, repo, achievements, log)
}
