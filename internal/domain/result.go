package domain

// ResultKind classifies the outcome of a workflow operation.
type ResultKind string

const (
	ResultAdded     ResultKind = "added"
	ResultUpdated   ResultKind = "updated"
	ResultSold      ResultKind = "sold"
	ResultDeleted   ResultKind = "deleted"
	ResultCancelled ResultKind = "cancelled"
	ResultInvalid   ResultKind = "invalid"
	ResultRefused   ResultKind = "refused"
	ResultFailed    ResultKind = "failed"
)

// Result is what every mutating operation hands back to the presentation
// layer, failures included. Title and Message are ready to show.
type Result struct {
	Kind    ResultKind `json:"kind"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Product *Product   `json:"product,omitempty"`
	Sale    *Sale      `json:"sale,omitempty"`
}

// OK reports whether the operation changed the store.
func (r Result) OK() bool {
	switch r.Kind {
	case ResultAdded, ResultUpdated, ResultSold, ResultDeleted:
		return true
	default:
		return false
	}
}

// Failed builds a Result for a store failure carrying its reason.
func Failed(title string, err error) Result {
	return Result{Kind: ResultFailed, Title: title, Message: err.Error()}
}

// RecordKind names the collection a delete targets.
type RecordKind string

const (
	KindProduct RecordKind = "product"
	KindSale    RecordKind = "sale"
)

func (k RecordKind) Valid() bool {
	return k == KindProduct || k == KindSale
}

// UpsertOutcome tells whether an upsert inserted or merged.
type UpsertOutcome struct {
	Product Product
	Created bool
}
