package httpx

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrVoidLink/loopa-servers-panel/internal/apperr"
)

func TestWriteAppError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		body   string
	}{
		{apperr.Validation("missing credentials"), 400, `{"error":"missing credentials"}`},
		{apperr.Unauthorized("invalid token"), 401, `{"error":"invalid token"}`},
		{apperr.Conflict("setup already completed"), 409, `{"error":"setup already completed"}`},
		{apperr.NotFound("not found"), 404, `{"error":"not found"}`},
		{apperr.Storage("save", errors.New("disk full")), 500, `{"error":"internal error"}`},
		{errors.New("boom"), 500, `{"error":"internal error"}`},
	}
	for _, tc := range cases {
		var logs bytes.Buffer
		rr := httptest.NewRecorder()
		WriteAppError(rr, zerolog.New(&logs), tc.err)
		assert.Equal(t, tc.status, rr.Code)
		assert.JSONEq(t, tc.body, rr.Body.String())
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		if tc.status == 500 {
			assert.Contains(t, logs.String(), "request failed")
		} else {
			assert.Empty(t, logs.String())
		}
	}
}

func TestWriteRetryAfter(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteRetryAfter(rr, 1500*time.Millisecond, "too many requests")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("Retry-After"))

	rr = httptest.NewRecorder()
	WriteRetryAfter(rr, -time.Second, "too many requests")
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
}

func TestDecodeJSON(t *testing.T) {
	var v struct{ Key string }
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"Key":"a"}`))
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), req, &v))
	assert.Equal(t, "a", v.Key)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.NoError(t, DecodeJSON(httptest.NewRecorder(), req, &v))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	assert.True(t, apperr.Is(DecodeJSON(httptest.NewRecorder(), req, &v), apperr.KindValidation))

	big := `{"Key":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	err := DecodeJSON(httptest.NewRecorder(), req, &v)
	require.Error(t, err)
	assert.Equal(t, "request body too large", apperr.PublicMessage(err))
}

func TestReadBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
	b, err := ReadBody(httptest.NewRecorder(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(b))

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(make([]byte, MaxBodyBytes+1)))
	_, err = ReadBody(httptest.NewRecorder(), req)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
