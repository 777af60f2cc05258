package source

// OutcomeKind is the three-way classification of one searcher call.
type OutcomeKind string

// Outcome kinds; the values double as metric labels.
const (
	Found    OutcomeKind = "found"
	NotFound OutcomeKind = "not_found"
	Failed   OutcomeKind = "failed"
)

// Outcome is the result of one searcher call for one image.
type Outcome struct {
	searcher string
	kind     OutcomeKind
	image    Image
	err      error
}

// NewOutcome classifies a raw searcher answer: an error means failed, a nil
// image means not found.
func NewOutcome(searcher string, image *Image, err error) Outcome {
	switch {
	case err != nil:
		return Outcome{searcher: searcher, kind: Failed, err: err}
	case image == nil:
		return Outcome{searcher: searcher, kind: NotFound}
	default:
		return Outcome{searcher: searcher, kind: Found, image: image.WithOrigin(searcher)}
	}
}

// Searcher returns the name of the searcher.
func (o *Outcome) Searcher() string { return o.searcher }

// Kind returns the classification.
func (o *Outcome) Kind() OutcomeKind { return o.kind }

// Image returns the found image; only meaningful when Kind is Found.
func (o *Outcome) Image() Image { return o.image }

// Err returns the failure; nil unless Kind is Failed.
func (o *Outcome) Err() error { return o.err }
