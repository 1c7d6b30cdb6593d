package pipeline

// Outcome statuses.
const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
)

// Skip reasons.
const (
	ReasonNoDescriptor      = "missing input.json"
	ReasonInvalidDescriptor = "invalid input.json"
	ReasonNotFound          = "PDF not found"
	ReasonUnreadable        = "PDF unreadable"
	ReasonRankFailed        = "ranking failed"
	ReasonWriteFailed       = "write failed"
)

// Outcome is the result of one unit of work: a collection, or a document
// within a collection.
type Outcome struct {
	// Name is the collection name or document filename.
	Name string

	// Status is StatusProcessed or StatusSkipped.
	Status string

	// Reason explains a skip.
	Reason string

	// Output is the report path of a processed collection.
	Output string

	// Sections counts ranked sections (collection) or kept blocks (document).
	Sections int

	// Documents holds per-document outcomes of a collection.
	Documents []Outcome
}

// Summary collects the outcomes of a run, one per discovered collection in
// discovery order.
type Summary struct {
	Collections []Outcome
}

// Processed counts collections that produced a report.
func (s *Summary) Processed() int {
	return s.count(StatusProcessed)
}

// Skipped counts collections that did not.
func (s *Summary) Skipped() int {
	return s.count(StatusSkipped)
}

func (s *Summary) count(status string) int {
	n := 0
	for _, o := range s.Collections {
		if o.Status == status {
			n++
		}
	}
	return n
}
