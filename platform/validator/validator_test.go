package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type submission struct {
	Name    string `validate:"required,notblank,max=255"`
	Email   string `validate:"required,email"`
	Message string `validate:"required,notblank"`
}

func TestStructReportsFieldErrors(t *testing.T) {
	v := New()

	err := v.Struct(submission{Name: "   ", Email: "not-an-email", Message: "hei"})
	fields := FieldErrors(err)

	assert.Equal(t, "notblank", fields["name"])
	assert.Equal(t, "email", fields["email"])
	assert.NotContains(t, fields, "message")
}

func TestStructAcceptsValidInput(t *testing.T) {
	v := New()
	assert.NoError(t, v.Struct(submission{Name: "Kari", Email: "kari@example.no", Message: "Er bilen ledig?"}))
}

func TestFieldErrorsIgnoresOtherErrors(t *testing.T) {
	assert.Nil(t, FieldErrors(errors.New("boom")))
}

func TestIsEmail(t *testing.T) {
	assert.True(t, IsEmail("ola.nordmann+bil@example.no"))
	assert.True(t, IsEmail("org-abc@placeholder.norvalt.no"))
	assert.False(t, IsEmail("ola@localhost"))
	assert.False(t, IsEmail("Ola Nordmann <ola@example.no>"))
	assert.False(t, IsEmail(""))
}
