package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/sells-group/provider-reconcile/internal/consensus"
	"github.com/sells-group/provider-reconcile/internal/metrics"
	"github.com/sells-group/provider-reconcile/internal/model"
	"github.com/sells-group/provider-reconcile/pkg/anthropic"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func phoneRequest() ExplainRequest {
	return ExplainRequest{
		Field:        "phone",
		CurrentValue: "123",
		ChosenValue:  "456",
		Confidence:   1.7 / 1.9,
		Decision:     "auto_update",
		Candidates: []model.Candidate{
			{Field: model.FieldPhone, Value: "456", Source: model.SourceRegistry},
			{Field: model.FieldPhone, Value: "456", Source: model.SourceHospital},
			{Field: model.FieldPhone, Value: "123", Source: model.SourceOriginal},
		},
	}
}

func TestTemplate_Explain(t *testing.T) {
	got := Template{}.Explain(context.Background(), phoneRequest())
	assert.Equal(t, "Decision for phone: chose 456 with confidence 0.89 from sources [registry, hospital].", got)
}

func TestTemplate_NoBackingSourceListsAll(t *testing.T) {
	req := phoneRequest()
	req.ChosenValue = "789"
	req.Confidence = 0

	got := Template{}.Explain(context.Background(), req)
	assert.Equal(t, "Decision for phone: chose 789 with confidence 0.00 from sources [registry, hospital, original].", got)
}

func TestTemplate_NoCandidates(t *testing.T) {
	got := Template{}.Explain(context.Background(), ExplainRequest{Field: "address"})
	assert.Equal(t, "Decision for address: chose  with confidence 0.00 from sources [].", got)
}

func newTestExplainer(c anthropic.Client, m *metrics.Metrics) *AssistedExplainer {
	return NewAssistedExplainer(c, consensus.AssistConfig{Model: "claude-haiku-4-5-20251001", Timeout: time.Second}, nil, m)
}

func TestAssistedExplainer_UsesReply(t *testing.T) {
	mc := new(mockClient)
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.MaxTokens == 300 &&
			len(req.Messages) == 1 &&
			strings.Contains(req.Messages[0].Content, "Chosen value: 456") &&
			strings.Contains(req.Messages[0].Content, "Confidence score: 0.89")
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "  Registry and hospital agree on 456.  "}},
	}, nil)

	got := newTestExplainer(mc, nil).Explain(context.Background(), phoneRequest())
	assert.Equal(t, "Registry and hospital agree on 456.", got)
	mc.AssertExpectations(t)
}

func TestAssistedExplainer_FallsBack(t *testing.T) {
	tests := []struct {
		name   string
		resp   *anthropic.MessageResponse
		err    error
		reason string
	}{
		{name: "error", err: errors.New("connection reset"), reason: "error"},
		{name: "quota", err: eris.Wrap(anthropic.ErrQuotaExceeded, "429"), reason: "quota"},
		{name: "empty reply", resp: &anthropic.MessageResponse{}, reason: "malformed"},
	}
	want := Template{}.Explain(context.Background(), phoneRequest())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New(prometheus.NewRegistry())
			mc := new(mockClient)
			if tt.resp != nil {
				mc.On("CreateMessage", mock.Anything, mock.Anything).Return(tt.resp, nil)
			} else {
				mc.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, tt.err)
			}

			got := newTestExplainer(mc, m).Explain(context.Background(), phoneRequest())
			assert.Equal(t, want, got)
			assert.InDelta(t, 1, testutil.ToFloat64(m.AssistFallbacks.WithLabelValues("explain", tt.reason)), 0)
		})
	}
}
