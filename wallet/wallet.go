// Package wallet implements the two inbound wallet operations: custodian webhook
// ingestion and on-demand balance refresh.
package wallet

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/HefaCom/health-florence-sub002/internal/apperr"
	"github.com/HefaCom/health-florence-sub002/internal/model"
)

// PreferencesStore reads and replaces a user's preferences document
type PreferencesStore interface {
	GetUserPreferences(ctx context.Context, userID string) ([]byte, error)
	UpdateUserPreferences(ctx context.Context, userID string, serialized string) error
}

// Ledger returns an account's native balance in drops
type Ledger interface {
	AccountBalance(ctx context.Context, address string) (string, error)
}

// Result is the status and JSON body an operation answers with
type Result struct {
	Status int
	Body   any
}

func success(body any) Result {
	return Result{Status: http.StatusOK, Body: body}
}

// fail renders an error as its caller-visible message. Only Message leaves the process.
func fail(err error, fallback string) Result {
	var e *apperr.Error
	if errors.As(err, &e) {
		msg := e.Message
		if e.Kind == apperr.KindUpstream {
			msg = fallback
		}
		return Result{Status: apperr.HTTPStatus(e.Kind), Body: model.ErrorResponse{Error: msg}}
	}
	return Result{Status: http.StatusInternalServerError, Body: model.ErrorResponse{Error: fallback}}
}

// readBody reads the raw request body, mapping read failures to "Invalid body"
func readBody(body io.Reader) ([]byte, error) {
	if body == nil {
		return nil, apperr.Validation("Invalid body")
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindValidation, Message: "Invalid body", Err: err}
	}
	return raw, nil
}
