package trace

// Status is a tri-state enable/disable override for a trace entity.
// StatusDefault means "no override here — fall through to the next
// entity in the resolution order, and ultimately to the stream default".
type Status uint8

const (
	StatusDefault Status = iota
	StatusEnabled
	StatusDisabled
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusEnabled:
		return "enabled"
	case StatusDisabled:
		return "disabled"
	default:
		return "default"
	}
}

// DetailSet is the per-entity trace_detail value: either every tag ("all")
// or an explicit allow-list of tags (spec.md §4.3's "list_of_tags | all").
type DetailSet struct {
	all  bool
	tags map[string]bool
}

// AllDetail returns a DetailSet that matches every tag.
func AllDetail() DetailSet { return DetailSet{all: true} }

// TagDetail returns a DetailSet matching exactly the given tags.
func TagDetail(tags ...string) DetailSet {
	m := make(map[string]bool, len(tags))
	for _, t := range tags {
		m[t] = true
	}
	return DetailSet{tags: m}
}

// Contains reports whether tag is included in the set.
func (d DetailSet) Contains(tag string) bool {
	if d.all {
		return true
	}
	return d.tags[tag]
}

// IsZero reports whether d is the unset zero value (neither "all" nor any
// explicit tag) — used to detect "unset, fall back to default_trace_detail".
func (d DetailSet) IsZero() bool {
	return !d.all && len(d.tags) == 0
}
