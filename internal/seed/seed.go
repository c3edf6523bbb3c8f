// Package seed loads the bundled activity catalog and imports activities
// suggested by an AI assistant.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"example.com/dailymenu/internal/domain"
)

// Namespace derives deterministic activity ids from seed string ids.
var Namespace = uuid.MustParse("a5b2c3d4-e5f6-4a5b-9c8d-7e6f5a4b3c2d")

// ActivityID maps a seed string id onto its stable UUID.
func ActivityID(seedID string) uuid.UUID {
	return uuid.NewSHA1(Namespace, []byte(seedID))
}

// Format selects the seed file decoder.
type Format string

// Supported seed formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the decoder from a file extension; anything that is not
// .yaml or .yml is read as JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Entry is one activity as written in a seed file.
type Entry struct {
	ID              string   `json:"id" yaml:"id"`
	Title           string   `json:"title" yaml:"title"`
	Description     string   `json:"description" yaml:"description"`
	ExpectedMinutes int      `json:"expectedMinutes" yaml:"expectedMinutes"`
	Category        string   `json:"category" yaml:"category"`
	Energy          string   `json:"energy" yaml:"energy"`
	Context         string   `json:"context" yaml:"context"`
	Repeatable      bool     `json:"repeatable" yaml:"repeatable"`
	Tags            []string `json:"tags" yaml:"tags"`
}

// Activity converts the entry into an approved seed activity.
func (e Entry) Activity() (domain.Activity, error) {
	if strings.TrimSpace(e.ID) == "" {
		return domain.Activity{}, fmt.Errorf("%w: seed entry %q has no id", domain.ErrValidation, e.Title)
	}
	a := domain.Activity{
		ID:               ActivityID(e.ID),
		Title:            strings.TrimSpace(e.Title),
		Description:      strings.TrimSpace(e.Description),
		ExpectedMinutes:  e.ExpectedMinutes,
		Energy:           domain.Energy(e.Energy),
		Context:          domain.SocialContext(e.Context),
		Category:         domain.Category(e.Category),
		Repeatable:       e.Repeatable,
		Tags:             domain.NormalizeTags(e.Tags),
		Source:           domain.SourceSeed,
		ModerationStatus: domain.ModerationApproved,
	}
	if err := a.Validate(); err != nil {
		return domain.Activity{}, fmt.Errorf("seed entry %q: %w", e.ID, err)
	}
	return a, nil
}

// Decode reads a seed document: a list of entries in the given format.
func Decode(r io.Reader, format Format) ([]domain.Activity, error) {
	var entries []Entry
	switch format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&entries); err != nil && err != io.EOF {
			return nil, fmt.Errorf("decode yaml seed: %w", err)
		}
	default:
		if err := json.NewDecoder(r).Decode(&entries); err != nil {
			return nil, fmt.Errorf("decode json seed: %w", err)
		}
	}

	activities := make([]domain.Activity, 0, len(entries))
	for _, e := range entries {
		a, err := e.Activity()
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, nil
}

// LoadFile decodes the seed file at path.
func LoadFile(path string) ([]domain.Activity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	activities, err := Decode(f, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return activities, nil
}

// Loader inserts seed activities into a record store.
type Loader struct {
	store  domain.RecordStore
	logger *log.Logger
}

// NewLoader constructs a Loader. A nil logger uses the [seed] default.
func NewLoader(store domain.RecordStore, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.New(log.Writer(), "[seed] ", log.LstdFlags|log.LUTC)
	}
	return &Loader{store: store, logger: logger}
}

// Load inserts the activities whose id is not stored yet and returns how many
// were inserted. Loading the same catalog twice inserts nothing the second time.
func (l *Loader) Load(ctx context.Context, activities []domain.Activity) (int, error) {
	seen := domain.NewIDSet()
	fresh := make([]domain.Activity, 0, len(activities))
	for _, a := range activities {
		if seen.Contains(a.ID) {
			continue
		}
		seen.Add(a.ID)

		existing, err := l.store.GetActivity(ctx, a.ID)
		if err != nil {
			return 0, fmt.Errorf("look up activity %s: %w", a.ID, err)
		}
		if existing != nil {
			continue
		}
		fresh = append(fresh, a)
	}

	if len(fresh) == 0 {
		l.logger.Printf("seed catalog already loaded (%d activities)", len(activities))
		return 0, nil
	}
	if err := l.store.Save(ctx, domain.ChangeSet{CreatedActivities: fresh}); err != nil {
		return 0, fmt.Errorf("save seed activities: %w", err)
	}
	l.logger.Printf("inserted %d of %d seed activities", len(fresh), len(activities))
	return len(fresh), nil
}

// LoadFiles decodes every path and loads the combined catalog.
func (l *Loader) LoadFiles(ctx context.Context, paths ...string) (int, error) {
	var all []domain.Activity
	for _, path := range paths {
		activities, err := LoadFile(path)
		if err != nil {
			return 0, err
		}
		all = append(all, activities...)
	}
	return l.Load(ctx, all)
}
