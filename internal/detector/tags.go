package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/dbsmedya/smdedupe/internal/logger"
	"github.com/dbsmedya/smdedupe/internal/store"
	"github.com/dbsmedya/smdedupe/internal/types"
)

// TagMatcher flags records whose filename contains any of a list of tags,
// such as AudioSuite render suffixes.
type TagMatcher struct {
	gw     *store.Gateway
	logger *logger.Logger
}

// NewTagMatcher creates a tag matcher over gw.
func NewTagMatcher(gw *store.Gateway, log *logger.Logger) (*TagMatcher, error) {
	if gw == nil {
		return nil, fmt.Errorf("gateway is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &TagMatcher{
		gw:     gw,
		logger: log.WithDetector(string(KindTags)),
	}, nil
}

// Find returns the union of records matching each tag. Blank tags are
// skipped; a list with no usable tag is a ConfigurationError.
func (m *TagMatcher) Find(ctx context.Context, tags []string) (*types.RemovalSet, error) {
	startTime := time.Now()

	usable := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		usable = append(usable, tag)
	}
	if len(usable) == 0 {
		return nil, &types.ConfigurationError{Field: "tags", Message: "tag list is empty"}
	}

	result := types.NewRemovalSet()
	for _, tag := range usable {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		records, err := m.gw.FetchByFilenameSubstring(ctx, tag)
		if err != nil {
			return nil, err
		}

		added := 0
		for _, r := range records {
			if result.Add(r) {
				added++
			}
		}
		if len(records) > 0 {
			m.logger.Debugf("Tag %q matched %d records (%d new)", tag, len(records), added)
		}
	}

	m.logger.Infof("Tag search flagged %d records across %d tags (duration: %s)",
		result.Len(), len(usable), time.Since(startTime))
	return result, nil
}
