package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestFromStoreTranslatesConstraintViolations(t *testing.T) {
	cases := []struct {
		name   string
		code   string
		kind   Kind
		status int
	}{
		{name: "unique", code: "23505", kind: KindConflict, status: http.StatusConflict},
		{name: "check", code: "23514", kind: KindBadRequest, status: http.StatusBadRequest},
		{name: "foreign key", code: "23503", kind: KindBadRequest, status: http.StatusBadRequest},
		{name: "other", code: "40001", kind: KindInternal, status: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: tc.code, TableName: "dealerships"}
			err := FromStore("create dealership", fmt.Errorf("insert: %w", pgErr))

			var domainErr *Error
			assert.True(t, errors.As(err, &domainErr))
			assert.Equal(t, tc.kind, domainErr.Kind)
			assert.Equal(t, tc.status, domainErr.HTTPStatus())
			assert.ErrorIs(t, err, pgErr)
		})
	}
}

func TestFromStorePassesThroughDomainErrors(t *testing.T) {
	original := NotFound("lead not found")
	assert.Same(t, original, FromStore("get lead", original))
	assert.Nil(t, FromStore("noop", nil))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestGetKindUnwraps(t *testing.T) {
	err := fmt.Errorf("outer: %w", Conflict("duplicate"))
	assert.True(t, Is(err, KindConflict))
	assert.Equal(t, KindUnknown, GetKind(errors.New("plain")))
}
