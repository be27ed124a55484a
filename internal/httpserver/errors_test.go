package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatd/internal/domain"
)

func TestErrStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrBlocked, http.StatusForbidden},
		{domain.ErrConflict, http.StatusConflict},
		{domain.ErrInvalidInput, http.StatusUnprocessableEntity},
		{errors.New("db exploded"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, errStatus(tc.err), tc.err.Error())
	}
}

func TestWriteErrMasksUnknownErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	writeErr(rec, errors.New("dial tcp 10.0.0.5:5432: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, domain.ErrInternal.Error(), body["error"])
}

func TestWriteErrKeepsKnownErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	writeErr(rec, domain.ErrNotFound)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, domain.ErrNotFound.Error(), body["error"])
}
