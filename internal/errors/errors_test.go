package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/NickAwrist/dynamic-pr-templates/internal/errors"
)

func TestWrap_UnwrapsToCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := errors.TemplateFetchFailed(".github/pr_templates/bug.md", cause)

	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
	if err.Code != errors.ErrCodeTemplateFetchFailed {
		t.Errorf("expected code %s, got %s", errors.ErrCodeTemplateFetchFailed, err.Code)
	}
}

func TestCodeOf_FindsCodeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("bootstrap: %w", errors.OwnerUnresolved("widgets"))
	if got := errors.CodeOf(wrapped); got != errors.ErrCodeOwnerUnresolved {
		t.Errorf("expected %s, got %q", errors.ErrCodeOwnerUnresolved, got)
	}
	if got := errors.CodeOf(stderrors.New("plain")); got != "" {
		t.Errorf("expected empty code for plain error, got %q", got)
	}
}

func TestIs_MatchesOnCode(t *testing.T) {
	err := errors.RemoteConflict(stderrors.New("exists"), "branch already exists")
	if !stderrors.Is(err, errors.New(errors.ErrCodeRemoteConflict, "")) {
		t.Error("expected errors.Is to match on error code")
	}
	if stderrors.Is(err, errors.New(errors.ErrCodeRemoteFailure, "")) {
		t.Error("expected different codes not to match")
	}
}

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		err  *errors.AppError
		want int
	}{
		{errors.InvalidRequest("bad"), http.StatusBadRequest},
		{errors.InvalidPrefix("../x", "path traversal"), http.StatusBadRequest},
		{errors.New(errors.ErrCodeUnauthorized, "nope"), http.StatusUnauthorized},
		{errors.NoPrefixFound("Fix"), http.StatusUnprocessableEntity},
		{errors.UpdateFailed(3, stderrors.New("boom")), http.StatusBadGateway},
		{errors.DatabaseError(stderrors.New("locked")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			if tt.err.StatusCode != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, tt.err.StatusCode)
			}
		})
	}
}
