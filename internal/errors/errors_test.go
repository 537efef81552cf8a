package errors_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	nnerrs "github.com/Shangzhi-shi/newsnow-fork/internal/errors"
)

func TestEConstructor(t *testing.T) {
	got := nnerrs.E(
		"something went wrong",
		nnerrs.Detail{Field: "name", Error: "was bad"},
		nnerrs.CodeValidationFailure,
		http.StatusBadRequest,
	)
	want := &nnerrs.Error{
		Err:  errors.New("something went wrong"),
		Code: nnerrs.CodeValidationFailure,
		Details: []nnerrs.Detail{
			{Field: "name", Error: "was bad"},
		},
		Status: http.StatusBadRequest,
	}

	assert.Equal(t, want, got)
}

func TestMessageJoinsDetails(t *testing.T) {
	err := nnerrs.E(
		"invalid view",
		nnerrs.Detail{Field: "name", Error: "must be 50 characters or fewer"},
		nnerrs.Detail{Field: "sources", Error: "must not be empty"},
	)

	assert.Equal(t, "name: must be 50 characters or fewer; sources: must not be empty", err.Message())
}

func TestMarshalRoundTrip(t *testing.T) {
	orig := nnerrs.E("nope", nnerrs.CodeNotFound, http.StatusNotFound)

	byts, err := orig.MarshalJSON()
	assert.NoError(t, err)

	got := &nnerrs.Error{}
	assert.NoError(t, got.UnmarshalJSON(byts))
	assert.Equal(t, http.StatusNotFound, got.Status)
	assert.Equal(t, nnerrs.CodeNotFound, got.Code)
	assert.Equal(t, "nope", got.Err.Error())
}
