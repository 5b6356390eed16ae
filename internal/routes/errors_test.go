package routes

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"school-device-issuance/internal/fault"
)

func TestGetErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fault.Validationf("bad input"), http.StatusBadRequest},
		{fault.InvalidStatef("wrong state"), http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
		{fault.Forbiddenf("nope"), http.StatusForbidden},
		{fault.NotFoundf("missing"), http.StatusNotFound},
		{fault.Conflictf("taken"), http.StatusConflict},
		{errors.New("anything else"), http.StatusInternalServerError},
		{NewHTTPError(http.StatusTeapot, nil, "teapot"), http.StatusTeapot},
	}
	for _, tc := range cases {
		if got := GetErrorStatus(tc.err); got != tc.want {
			t.Errorf("GetErrorStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestGetErrorMessageHidesInternals(t *testing.T) {
	msg := GetErrorMessage(errors.New("password=hunter2 leaked"))
	if strings.Contains(msg, "hunter2") {
		t.Errorf("internal error detail leaked: %q", msg)
	}

	msg = GetErrorMessage(fault.Validationf("quantity must not be negative"))
	if !strings.Contains(msg, "quantity") {
		t.Errorf("client error detail lost: %q", msg)
	}
}

func TestErrorHandlerWritesJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/boom", func(c *gin.Context) {
		AbortWithError(c, fault.NotFoundf("application 42"))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "application 42") {
		t.Errorf("body = %s", w.Body.String())
	}
}
