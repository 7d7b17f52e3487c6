package detector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dbsmedya/smdedupe/internal/config"
	"github.com/dbsmedya/smdedupe/internal/logger"
	"github.com/dbsmedya/smdedupe/internal/store"
	"github.com/dbsmedya/smdedupe/internal/types"
)

// CompareMatcher flags primary records whose filename also appears in a
// second database.
type CompareMatcher struct {
	primary   *store.Gateway
	secondary *store.Gateway
	logger    *logger.Logger
}

// NewCompareMatcher creates a matcher between two gateways.
func NewCompareMatcher(primary, secondary *store.Gateway, log *logger.Logger) (*CompareMatcher, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary gateway is nil")
	}
	if secondary == nil {
		return nil, &types.ConnectionError{Err: fmt.Errorf("no comparison database")}
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &CompareMatcher{
		primary:   primary,
		secondary: secondary,
		logger:    log.WithDetector(string(KindCompare)),
	}, nil
}

// Find returns the primary records matching the secondary's filenames.
// mode is config.CompareExact or config.CompareContains; empty means exact.
func (m *CompareMatcher) Find(ctx context.Context, mode string) (*types.RemovalSet, error) {
	startTime := time.Now()

	switch mode {
	case "", config.CompareExact, config.CompareContains:
	default:
		return nil, &types.ConfigurationError{Field: "compare mode", Message: fmt.Sprintf("unknown mode %q", mode)}
	}

	if err := m.secondary.Preflight(ctx); err != nil {
		return nil, err
	}

	names, err := m.secondary.Filenames(ctx)
	if err != nil {
		return nil, err
	}
	m.logger.Debugf("Loaded %d filenames from %s", len(names), m.secondary.Source())

	known := make(map[string]struct{}, len(names))
	for _, n := range names {
		known[n] = struct{}{}
	}

	match := func(filename string) bool {
		_, ok := known[filename]
		return ok
	}
	if mode == config.CompareContains {
		match = func(filename string) bool {
			for _, n := range names {
				if strings.Contains(filename, n) {
					return true
				}
			}
			return false
		}
	}

	result := types.NewRemovalSet()
	if len(known) > 0 {
		err = m.primary.EachRecord(ctx, func(r types.MetadataRecord) error {
			if r.Filename != "" && match(r.Filename) {
				result.Add(r)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	m.logger.Infof("Comparison flagged %d records found in %s (mode %s, duration: %s)",
		result.Len(), m.secondary.Source(), modeName(mode), time.Since(startTime))
	return result, nil
}

func modeName(mode string) string {
	if mode == "" {
		return config.CompareExact
	}
	return mode
}
