package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-reconcile/internal/model"
	"github.com/sells-group/provider-reconcile/internal/store"
)

var (
	// ErrAlreadyResolved is returned when a review item is no longer pending.
	ErrAlreadyResolved = eris.New("reconcile: review item already resolved")

	// ErrInvalidAction is returned for an unknown action or an override
	// without a value.
	ErrInvalidAction = eris.New("reconcile: invalid review action")
)

// ParseAction validates a review action name.
func ParseAction(s string) (model.ReviewAction, error) {
	switch a := model.ReviewAction(strings.ToLower(strings.TrimSpace(s))); a {
	case model.ReviewActionApprove, model.ReviewActionOverride, model.ReviewActionReject:
		return a, nil
	default:
		return "", eris.Wrapf(ErrInvalidAction, "unknown action %q", s)
	}
}

// ResolveReview applies a human decision to a pending review item. Approve
// writes the suggested value, override writes value, and reject leaves the
// provider untouched. Each writes one audit entry in the same transaction
// as the status change.
func (e *Engine) ResolveReview(ctx context.Context, itemID int64, action model.ReviewAction, value string) (*model.ReviewResolution, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return nil, err
	}
	if action == model.ReviewActionOverride && strings.TrimSpace(value) == "" {
		return nil, eris.Wrap(ErrInvalidAction, "override requires a value")
	}

	at := e.now().UTC()
	res, err := e.store.ResolveReview(ctx, itemID, func(item model.ManualReviewItem, p model.Provider) (model.ReviewResolution, error) {
		return resolution(item, p, action, value, at)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: resolve review %d", itemID)
	}

	zap.L().Info("reconcile: review resolved",
		zap.Int64("item_id", itemID),
		zap.Int64("provider_id", res.ProviderID),
		zap.String("field", string(res.Field)),
		zap.String("status", string(res.Status)),
	)

	if res.Apply {
		if _, _, err := e.scores.Compute(ctx, res.ProviderID); err != nil {
			zap.L().Warn("reconcile: score refresh failed", zap.Int64("provider_id", res.ProviderID), zap.Error(err))
		}
	}
	return res, nil
}

// resolution computes the effect of action on item. It is pure so the store
// can run it inside the resolving transaction.
func resolution(item model.ManualReviewItem, p model.Provider, action model.ReviewAction, value string, at time.Time) (model.ReviewResolution, error) {
	if item.Status.Terminal() {
		return model.ReviewResolution{}, eris.Wrapf(ErrAlreadyResolved, "item %d is %s", item.ID, item.Status)
	}

	res := model.ReviewResolution{
		ItemID:     item.ID,
		ProviderID: item.ProviderID,
		Field:      item.FieldName,
		At:         at,
		Audit: model.AuditEntry{
			ProviderID: item.ProviderID,
			FieldName:  item.FieldName,
			Actor:      model.ActorHumanReviewer,
			CreatedAt:  at,
		},
	}

	switch action {
	case model.ReviewActionApprove:
		res.Status = model.ReviewApproved
		res.Apply = true
		res.Audit.Action = model.AuditManualApprove
		res.Audit.OldValue = p.Value(item.FieldName)
		res.Audit.NewValue = item.SuggestedValue
	case model.ReviewActionOverride:
		res.Status = model.ReviewOverridden
		res.Apply = true
		res.Audit.Action = model.AuditManualOverride
		res.Audit.OldValue = p.Value(item.FieldName)
		res.Audit.NewValue = value
	case model.ReviewActionReject:
		res.Status = model.ReviewRejected
		res.Audit.Action = model.AuditManualReject
		res.Audit.OldValue = item.CurrentValue
		res.Audit.NewValue = item.CurrentValue
	default:
		return model.ReviewResolution{}, eris.Wrapf(ErrInvalidAction, "unknown action %q", action)
	}
	return res, nil
}

// IsNotFound reports whether err means the provider or review item does
// not exist.
func IsNotFound(err error) bool { return store.IsNotFound(err) }
