package validation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Email    string `json:"email" validate:"required,email"`
	Gender   string `json:"gender" validate:"omitempty,oneof=M F O"`
	Password string `json:"password" validate:"required,min=8"`
}

func TestStruct(t *testing.T) {
	err := Struct(signup{Email: "nope", Gender: "X", Password: "short"})
	ve, ok := As(err)
	require.True(t, ok)

	codes := map[string]string{}
	for _, f := range ve.Fields {
		codes[f.Field] = f.Code
	}
	assert.Equal(t, map[string]string{
		"email":    "invalid_email",
		"gender":   "invalid_choice",
		"password": "too_short",
	}, codes)

	assert.NoError(t, Struct(signup{Email: "ana@example.com", Password: "longenough"}))
}

func TestErrors(t *testing.T) {
	var e Errors
	assert.Nil(t, e.Err())

	e.Add("date", "date_in_past", "the date cannot be in the past")
	e.Add("time", "slot_taken", "taken")
	require.Error(t, e.Err())
	assert.True(t, e.Has("slot_taken"))
	assert.False(t, e.Has("non_working_day"))
	assert.Equal(t, "validation failed: date: date_in_past, time: slot_taken", e.Error())

	wrapped := fmt.Errorf("book: %w", Single("time", "slot_taken", "taken"))
	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Len(t, got.Fields, 1)

	_, ok = As(errors.New("boom"))
	assert.False(t, ok)
}
