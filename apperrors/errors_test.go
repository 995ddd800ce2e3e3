package apperrors_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"unschooling-payment-service/apperrors"
)

func TestWrap_KeepsKindAndLeavesSentinelUntouched(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := apperrors.ErrGatewayUnavailable.Wrap(cause)

	assert.True(t, errors.Is(err, apperrors.ErrGatewayUnavailable))
	assert.False(t, errors.Is(err, apperrors.ErrGatewayRejected))
	assert.True(t, errors.Is(err, cause))
	assert.Nil(t, apperrors.ErrGatewayUnavailable.Err, "sentinel must not be mutated")
}

func TestIs_ThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("create order: %w", apperrors.ErrUnknownPlan.Wrapf("plan %q", "gold"))
	assert.True(t, errors.Is(err, apperrors.ErrUnknownPlan))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, apperrors.IsRetryable(apperrors.ErrGatewayUnavailable.Wrap(errors.New("timeout"))))
	assert.False(t, apperrors.IsRetryable(apperrors.ErrGatewayRejected))
	assert.False(t, apperrors.IsRetryable(apperrors.ErrSignatureMismatch))
	assert.False(t, apperrors.IsRetryable(errors.New("plain")))
	assert.True(t, apperrors.IsRetryable(apperrors.ErrServiceUnavailable.Wrap(errors.New("redis: connection refused"))))
	assert.False(t, errors.Is(apperrors.ErrServiceUnavailable, apperrors.ErrGatewayUnavailable))
}

func TestErrorMiddleware_HidesCause(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(apperrors.ErrorMiddleware())
	r.GET("/x", func(c *gin.Context) {
		_ = c.Error(apperrors.ErrSignatureMismatch.Wrap(errors.New("expected abc got def")))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "payment could not be verified")
	assert.NotContains(t, w.Body.String(), "expected abc")
}

func TestErrorMiddleware_UnknownErrorIsInternal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(apperrors.ErrorMiddleware())
	r.GET("/x", func(c *gin.Context) {
		_ = c.Error(errors.New("db exploded"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db exploded")
}
