package model

// RetrievedChunk is a paragraph-sized unit of a source document scored
// against a query. The ID is "<source>::chunk<N>".
type RetrievedChunk struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

// Constraints holds structured values the planner extracted from retrieved
// text: date ranges, category filters, formula definitions. Missing fields
// are simply absent from the map; the set is read-only after planning.
type Constraints map[string]string

// Constraint keys populated by the planner.
const (
	ConstraintDateStart  = "date_start"
	ConstraintDateEnd    = "date_end"
	ConstraintCategories = "categories"
	ConstraintFormula    = "formula"
)

// MeanScore returns the average retrieval score of the chunks, or 0 for an
// empty slice.
func MeanScore(chunks []RetrievedChunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range chunks {
		sum += c.Score
	}
	return sum / float64(len(chunks))
}
