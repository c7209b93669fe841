package repository

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestPageNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Page
		want Page
	}{
		{"zero value gets defaults", Page{}, Page{Page: 1, Limit: DefaultPageSize}},
		{"negative page", Page{Page: -3, Limit: 5}, Page{Page: 1, Limit: 5}},
		{"limit above max", Page{Page: 2, Limit: 1000}, Page{Page: 2, Limit: MaxPageSize}},
		{"valid page kept", Page{Page: 4, Limit: 25}, Page{Page: 4, Limit: 25}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestPageOffset(t *testing.T) {
	assert.Equal(t, int64(0), Page{Page: 1, Limit: 20}.Offset())
	assert.Equal(t, int64(40), Page{Page: 3, Limit: 20}.Offset())
	assert.Equal(t, int64(0), Page{}.Offset())
}

func TestNewBatchCode(t *testing.T) {
	re := regexp.MustCompile(`^B[1-9][0-9]{2}$`)
	for i := 0; i < 200; i++ {
		code := NewBatchCode()
		assert.Regexp(t, re, code)
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ada@example.com", NormalizeEmail("  Ada@Example.COM "))
}

func TestDuplicateOn(t *testing.T) {
	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{
		Code:    11000,
		Message: "E11000 duplicate key error collection: tms.users index: uniq_email dup key: { email: \"ada@example.com\" }",
	}}}
	assert.True(t, duplicateOn(dup, "uniq_email"))
	assert.False(t, duplicateOn(dup, "uniq_keycloak_id"))
	assert.False(t, duplicateOn(errors.New("uniq_email"), "uniq_email"))
}

func TestNotFound(t *testing.T) {
	assert.ErrorIs(t, notFound(mongo.ErrNoDocuments), ErrNotFound)
	other := errors.New("boom")
	assert.Equal(t, other, notFound(other))
	assert.NoError(t, notFound(nil))
}
