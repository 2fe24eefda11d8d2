// Package decision maps a consensus result onto an update decision.
package decision

import (
	"fmt"

	"github.com/sells-group/provider-reconcile/internal/model"
)

// Decide is the threshold gate. It emits no_op when there is no winning value
// or the winner equals current, auto_update when confidence reaches
// threshold, and manual_review otherwise. It is a pure function.
func Decide(field model.FieldName, current string, res model.ConsensusResult, threshold float64) model.Decision {
	if !res.HasBest() || res.Best == current {
		return model.Decision{Kind: model.DecisionNoOp, Field: field, Confidence: res.Confidence}
	}

	if res.Confidence >= threshold {
		return model.Decision{
			Kind:       model.DecisionAutoUpdate,
			Field:      field,
			From:       current,
			To:         res.Best,
			Confidence: res.Confidence,
		}
	}

	return model.Decision{
		Kind:       model.DecisionManualReview,
		Field:      field,
		From:       current,
		To:         res.Best,
		Confidence: res.Confidence,
		Reason:     fmt.Sprintf("low confidence (%.2f)", res.Confidence),
	}
}
