package consensus

import "github.com/sells-group/provider-reconcile/internal/model"

// Payload is one source's normalized record. Fields the source did not
// supply are absent from Values.
type Payload struct {
	Source model.SourceID
	Values map[model.FieldName]string
}

// Aggregate builds the candidate list for every reconciled field. Candidates
// follow payload order, and the provider's current value is appended last as
// the original source. Only empty values are dropped; whitespace is a value.
func Aggregate(p *model.Provider, payloads []Payload) map[model.FieldName][]model.Candidate {
	out := make(map[model.FieldName][]model.Candidate)
	for _, f := range model.Fields() {
		var cands []model.Candidate
		for _, pl := range payloads {
			if v, ok := pl.Values[f.Name]; ok && present(v) {
				cands = append(cands, model.Candidate{Field: f.Name, Value: v, Source: pl.Source})
			}
		}
		if cur := f.Get(p); present(cur) {
			cands = append(cands, model.Candidate{Field: f.Name, Value: cur, Source: model.SourceOriginal})
		}
		out[f.Name] = cands
	}
	return out
}

func present(v string) bool {
	return v != ""
}
