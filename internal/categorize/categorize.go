// Package categorize turns a flat list of bookmarks into a category map by
// sending them in batches to a text classifier.
package categorize

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nikbrunner/bmsort/internal/ai"
	"github.com/nikbrunner/bmsort/internal/model"
)

// DefaultBatchSize is the number of bookmarks sent per classifier request.
const DefaultBatchSize = 50

// OtherRoot absorbs roots that do not fit the width bound or the hint set.
const OtherRoot = "Other"

var (
	ErrNoCredential = errors.New("no classifier credential configured")
	ErrParse        = errors.New("unparseable classifier reply")
)

// Policy controls the shape of the category tree.
type Policy struct {
	MaxRootCategories int
	// Hints fixes the allowed root segments when non-empty.
	Hints     []string
	BatchSize int
	Language  string
}

func (p Policy) withDefaults() Policy {
	if p.MaxRootCategories < 1 {
		p.MaxRootCategories = 1
	}
	if p.BatchSize < 1 {
		p.BatchSize = DefaultBatchSize
	}
	if p.Language == "" {
		p.Language = "English"
	}
	return p
}

// Params holds dependencies for a Categorizer.
type Params struct {
	Gateway ai.Gateway
	// Config is the base request config; MaxTokens is set per batch.
	Config ai.Config
	Logger zerolog.Logger
	// OnBatch, when set, is called after each batch completes.
	OnBatch func(done, total int)
}

// Categorizer runs classification batches sequentially.
type Categorizer struct {
	gateway ai.Gateway
	cfg     ai.Config
	log     zerolog.Logger
	onBatch func(done, total int)
}

// New creates a Categorizer.
func New(params Params) *Categorizer {
	return &Categorizer{
		gateway: params.Gateway,
		cfg:     params.Config,
		log:     params.Logger,
		onBatch: params.OnBatch,
	}
}

// Categorize classifies items and returns the merged, normalized map.
func (c *Categorizer) Categorize(ctx context.Context, items []model.Bookmark, policy Policy) (*model.CategoryMap, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %w", ErrNoCredential, ai.ErrNoAPIKey)
	}
	result := model.NewCategoryMap()
	if len(items) == 0 {
		return result, nil
	}
	policy = policy.withDefaults()

	batches := Chunk(uniqueByID(items), policy.BatchSize)
	for i, batch := range batches {
		cfg := c.cfg
		cfg.MaxTokens = TokenBudget(len(batch))

		c.log.Debug().Int("batch", i+1).Int("of", len(batches)).Int("items", len(batch)).Msg("classifying batch")

		raw, err := c.gateway.Request(ctx, BuildPrompt(batch, policy), cfg)
		if err != nil {
			if errors.Is(err, ai.ErrInvalidResponse) {
				return nil, fmt.Errorf("%w: batch %d/%d: %w", ErrParse, i+1, len(batches), err)
			}
			return nil, fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
		}

		cm, err := ParseResponse(raw, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
		}
		if dropped := len(batch) - cm.Total(); dropped > 0 {
			c.log.Debug().Int("batch", i+1).Int("unclassified", dropped).Msg("items missing from reply")
		}
		result.Merge(cm)

		if c.onBatch != nil {
			c.onBatch(i+1, len(batches))
		}
	}

	if len(policy.Hints) > 0 {
		return ConfineRoots(result, HintRoots(policy.Hints)), nil
	}
	return CapRoots(result, policy.MaxRootCategories), nil
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk(items []model.Bookmark, size int) [][]model.Bookmark {
	if size < 1 {
		size = DefaultBatchSize
	}
	var out [][]model.Bookmark
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

// TokenBudget scales the output token limit with the batch size.
func TokenBudget(n int) int {
	return max(1000, 40*n)
}

func uniqueByID(items []model.Bookmark) []model.Bookmark {
	seen := make(map[string]bool, len(items))
	out := make([]model.Bookmark, 0, len(items))
	for _, b := range items {
		if seen[b.ID] {
			continue
		}
		seen[b.ID] = true
		out = append(out, b)
	}
	return out
}
