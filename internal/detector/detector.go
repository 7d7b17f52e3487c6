// Package detector holds the strategies that flag records for removal:
// duplicate grouping, filename tags, and comparison against a second database.
package detector

// Kind names a detector.
type Kind string

const (
	KindDuplicates Kind = "duplicates"
	KindTags       Kind = "tags"
	KindCompare    Kind = "compare"
)

// Kinds lists every detector in dispatch order.
func Kinds() []Kind {
	return []Kind{KindDuplicates, KindTags, KindCompare}
}
