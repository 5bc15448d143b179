package response

import (
	"encoding/json"
	"errors"
	"farm_community/internal/pkg/apperr"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   int
	}{
		{"validation", apperr.Validation("title is required"), http.StatusBadRequest, ErrContentInvalid},
		{"authorization", apperr.Authorization("not the author"), http.StatusForbidden, ErrNotAuthor},
		{"not found", apperr.NotFound("post not found"), http.StatusNotFound, ErrPostNotFound},
		{"transient", errors.New("dial tcp: timeout"), http.StatusServiceUnavailable, ErrUpstream},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, code := Status(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, code)
		})
	}
}

func TestFromError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	FromError(c, apperr.NotFound("post %s not found", "p1"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, ErrPostNotFound, body.Code)
	assert.Equal(t, "post p1 not found", body.Message)
}
