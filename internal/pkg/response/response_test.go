package response

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	xerrors "backoffice-iam/internal/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func render(err error) (*httptest.ResponseRecorder, Response) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	FromError(c, err)

	var body Response
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestFromErrorStatusCodes(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{xerrors.Invalid("email", "bad"), http.StatusBadRequest},
		{xerrors.ErrInvalidCredentials, http.StatusUnauthorized},
		{fmt.Errorf("rotate: %w", xerrors.ErrTokenStale), http.StatusUnauthorized},
		{xerrors.ErrAccountSuspended, http.StatusForbidden},
		{&xerrors.SystemEntityProtectedError{Entity: "role", ID: "r", Op: "update", Fields: []string{"roleName"}}, http.StatusForbidden},
		{xerrors.ErrNotFound, http.StatusNotFound},
		{xerrors.Wrap(xerrors.ErrConflict, "email taken"), http.StatusConflict},
		{xerrors.Storage(context.DeadlineExceeded), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec, body := render(tc.err)
		require.Equal(t, tc.code, rec.Code, tc.err.Error())
		require.False(t, body.Success)
	}
}

func TestFromErrorLockedSetsRetryAfter(t *testing.T) {
	rec, body := render(&xerrors.AccountLockedError{Until: time.Now().Add(time.Minute), RetryAfter: 90500 * time.Millisecond})
	require.Equal(t, http.StatusLocked, rec.Code)
	require.Equal(t, "91", rec.Header().Get("Retry-After"))
	require.Empty(t, body.Error)
}

func TestProductionHidesInternalErrors(t *testing.T) {
	SetProduction(true)
	defer SetProduction(false)

	_, body := render(errors.New("pq: relation admins does not exist"))
	require.Empty(t, body.Error)
	require.Equal(t, "internal server error", body.Message)

	_, body = render(xerrors.Invalid("email", "bad"))
	require.Equal(t, "email: bad", body.Error)
}
