package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/inhouse/internal/adapters/repository"
	"github.com/okian/inhouse/internal/app"
	"github.com/okian/inhouse/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrInFlight   = errors.New("request with this idempotency key is in flight")
)

// Wrap annotates err with the handler operation.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// WrapKind annotates cause with op and marks it as kind.
func WrapKind(op string, kind, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, cause)
}

// NewKind returns kind annotated with op.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// errorStatus maps an error kind to a status and a stable code. Order
// matters: ErrSessionAlreadyScored wraps ErrInvalidTransition.
var errorStatus = []struct {
	kind   error
	status int
	code   string
}{
	{ErrBadRequest, http.StatusBadRequest, "bad_request"},
	{app.ErrNoRoles, http.StatusBadRequest, "no_roles"},
	{model.ErrUnknownRole, http.StatusBadRequest, "unknown_role"},
	{app.ErrChampionUnknown, http.StatusBadRequest, "unknown_champion"},
	{app.ErrNotInSession, http.StatusForbidden, "not_in_session"},
	{app.ErrNoUnresolvedSession, http.StatusNotFound, "no_unresolved_session"},
	{app.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{app.ErrNoDispute, http.StatusNotFound, "no_dispute"},
	{repository.ErrNotFound, http.StatusNotFound, "not_found"},
	{app.ErrParticipantInGame, http.StatusConflict, "in_game"},
	{app.ErrParticipantInReadyCheck, http.StatusConflict, "in_ready_check"},
	{app.ErrStaleReadyCheckSignal, http.StatusConflict, "stale_signal"},
	{app.ErrSessionAlreadyScored, http.StatusConflict, "already_scored"},
	{model.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{ErrInFlight, http.StatusConflict, "in_flight"},
	{app.ErrEngineClosed, http.StatusServiceUnavailable, "unavailable"},
}

func statusOf(err error) (int, string) {
	for _, e := range errorStatus {
		if errors.Is(err, e.kind) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}
