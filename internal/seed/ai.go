package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"example.com/dailymenu/internal/domain"
)

// Defaults applied when an AI response is not JSON and only the labelled
// markdown lines could be read.
const (
	fallbackMinutes     = 15
	fallbackDescription = "A moment of joy awaits."
	maxImportMinutes    = 180
)

var fallbackTags = []string{"ai-generated", "custom"}

// ErrUnparseable is returned when a response holds neither a JSON activity
// nor an "Activity:" line.
var ErrUnparseable = errors.New("seed: response contains no activity")

// ParsedActivity is an activity extracted from an assistant's reply.
type ParsedActivity struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	ExpectedMinutes int      `json:"expectedMinutes"`
	Energy          string   `json:"energy"`
	Context         string   `json:"context"`
	Category        string   `json:"category"`
	Tags            []string `json:"tags"`
}

// ParseAIResponse reads the outermost {...} object in text. When that fails it
// falls back to "Activity:", "Description:" and "Time:" lines, markdown bold
// markers allowed.
func ParseAIResponse(text string) (ParsedActivity, error) {
	if raw, ok := outermostObject(text); ok {
		var parsed ParsedActivity
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			return parsed, nil
		}
	}
	return parseLabelled(text)
}

func outermostObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

func parseLabelled(text string) (ParsedActivity, error) {
	var title, description string
	minutes := fallbackMinutes

	for _, line := range strings.Split(text, "\n") {
		if v, ok := labelValue(line, "activity:"); ok {
			title = v
		}
		if v, ok := labelValue(line, "description:"); ok {
			description = v
		}
		if v, ok := labelValue(line, "time:"); ok {
			if n, found := firstNumber(v); found {
				minutes = n
			}
		}
	}

	if title == "" {
		return ParsedActivity{}, ErrUnparseable
	}
	if description == "" {
		description = fallbackDescription
	}
	return ParsedActivity{
		Title:           title,
		Description:     description,
		ExpectedMinutes: minutes,
		Energy:          string(domain.EnergyOkay),
		Context:         string(domain.ContextSolo),
		Category:        string(CategoryForMinutes(minutes)),
		Tags:            append([]string(nil), fallbackTags...),
	}, nil
}

// labelValue returns the text after label on line, ignoring case and ** markers.
func labelValue(line, label string) (string, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(line), "**", "")
	idx := strings.Index(strings.ToLower(cleaned), label)
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(cleaned[idx+len(label):]), true
}

func firstNumber(s string) (int, bool) {
	start := strings.IndexFunc(s, unicode.IsDigit)
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[start:end])
	return n, err == nil
}

// CategoryForMinutes buckets a duration into a menu course.
func CategoryForMinutes(minutes int) domain.Category {
	switch {
	case minutes <= 5:
		return domain.CategoryStarter
	case minutes <= 20:
		return domain.CategoryMain
	default:
		return domain.CategoryDessert
	}
}

// Validate checks an imported activity before it is stored.
func Validate(p ParsedActivity) error {
	switch {
	case strings.TrimSpace(p.Title) == "":
		return fmt.Errorf("%w: title is required", domain.ErrValidation)
	case strings.TrimSpace(p.Description) == "":
		return fmt.Errorf("%w: description is required", domain.ErrValidation)
	case p.ExpectedMinutes < 1 || p.ExpectedMinutes > maxImportMinutes:
		return fmt.Errorf("%w: expected minutes must be between 1 and %d, got %d", domain.ErrValidation, maxImportMinutes, p.ExpectedMinutes)
	case !domain.Energy(p.Energy).Valid():
		return fmt.Errorf("%w: %q", domain.ErrInvalidEnergy, p.Energy)
	case !domain.SocialContext(p.Context).Valid():
		return fmt.Errorf("%w: %q", domain.ErrInvalidContext, p.Context)
	case !domain.Category(p.Category).Valid():
		return fmt.Errorf("%w: unknown category %q", domain.ErrValidation, p.Category)
	}
	return nil
}

// ImportResult reports an import run.
type ImportResult struct {
	Imported []domain.Activity
	Skipped  []string
}

// Importer stores parsed AI activities, skipping titles already in the catalog.
type Importer struct {
	store  domain.RecordStore
	logger *log.Logger
	newID  func() uuid.UUID
}

// NewImporter constructs an Importer. A nil logger uses the [seed] default.
func NewImporter(store domain.RecordStore, logger *log.Logger) *Importer {
	if logger == nil {
		logger = log.New(log.Writer(), "[seed] ", log.LstdFlags|log.LUTC)
	}
	return &Importer{store: store, logger: logger, newID: uuid.New}
}

// Import validates every parsed activity, then saves the ones whose title is
// new in a single change set. Titles compare case-insensitively, within the
// batch as well as against the store.
func (i *Importer) Import(ctx context.Context, parsed ...ParsedActivity) (ImportResult, error) {
	for _, p := range parsed {
		if err := Validate(p); err != nil {
			return ImportResult{}, fmt.Errorf("import %q: %w", p.Title, err)
		}
	}

	var result ImportResult
	batch := make(map[string]struct{}, len(parsed))
	for _, p := range parsed {
		title := strings.TrimSpace(p.Title)
		key := strings.ToLower(title)
		if _, dup := batch[key]; dup {
			result.Skipped = append(result.Skipped, title)
			continue
		}
		batch[key] = struct{}{}

		existing, err := i.store.FindActivityByTitle(ctx, title)
		if err != nil {
			return ImportResult{}, fmt.Errorf("look up %q: %w", title, err)
		}
		if existing != nil {
			result.Skipped = append(result.Skipped, title)
			continue
		}

		result.Imported = append(result.Imported, domain.Activity{
			ID:               i.newID(),
			Title:            title,
			Description:      strings.TrimSpace(p.Description),
			ExpectedMinutes:  p.ExpectedMinutes,
			Energy:           domain.Energy(p.Energy),
			Context:          domain.SocialContext(p.Context),
			Category:         domain.Category(p.Category),
			Repeatable:       true,
			Tags:             domain.NormalizeTags(p.Tags),
			Source:           domain.SourceAIImport,
			ModerationStatus: domain.ModerationApproved,
		})
	}

	if len(result.Imported) == 0 {
		return result, nil
	}
	if err := i.store.Save(ctx, domain.ChangeSet{CreatedActivities: result.Imported}); err != nil {
		return ImportResult{}, fmt.Errorf("save imported activities: %w", err)
	}
	i.logger.Printf("imported %d activities, skipped %d existing titles", len(result.Imported), len(result.Skipped))
	return result, nil
}
