package handler

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/custody-guard/internal/domain"
)

func TestWriteErrorMapping(t *testing.T) {
	t.Parallel()

	validation := domain.NewValidationError()
	validation.Add("notional_usd", "must be positive")

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"validation", validation, 400},
		{"guardrail denial is a client error", &domain.PolicyDeniedError{
			Stage: domain.StageGuardrail, Issues: []string{"market \"DOGE\" is not allowed"},
		}, 400},
		{"guardian denial", &domain.PolicyDeniedError{
			Stage:   domain.StageGuardian,
			Denials: []domain.GuardianDenial{domain.Deny(domain.GuardianSpend, "Spend limit", "over budget")},
		}, 403},
		{"custody breach", &domain.PolicyDeniedError{
			Stage:  domain.StageCustody,
			Breach: &domain.PolicyBreach{RuleID: "custody.denylist", Reason: "denylisted"},
		}, 403},
		{"not found", &domain.NotFoundError{Resource: "approval", ID: "x"}, 404},
		{"already processed", domain.ErrAlreadyProcessed, 409},
		{"invalid transition", domain.ErrInvalidTransition, 409},
		{"unknown preset", &domain.ConfigurationError{Msg: "unknown preset: yolo"}, 400},
		{"upstream fault", &domain.UpstreamFaultError{
			Stage: domain.StageExecution, Err: errors.New("connection refused"),
		}, 500},
		{"unclassified", errors.New("boom"), 500},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			writeError(rec, tc.err)
			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestWriteErrorHidesUpstreamDetails(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeError(rec, &domain.UpstreamFaultError{
		Stage: domain.StageExecution,
		Err:   errors.New("pq: password authentication failed for user custody"),
	})

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "execution failed", body.Error)
	assert.Equal(t, domain.StageExecution, body.Stage)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestPolicyDenialBodyCarriesReasons(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeError(rec, &domain.PolicyDeniedError{
		Stage: domain.StageGuardian,
		Denials: []domain.GuardianDenial{
			domain.Deny(domain.GuardianSpend, "Spend limit", "daily budget exceeded"),
			domain.Deny(domain.GuardianLeverage, "Leverage cap", "leverage 10x over cap 2x"),
		},
	})

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.StageGuardian, body.Stage)
	require.Len(t, body.Denials, 2)
	assert.Equal(t, domain.GuardianSpend, body.Denials[0].Guardian)
	assert.Equal(t, domain.GuardianLeverage, body.Denials[1].Guardian)
}
