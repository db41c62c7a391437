package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID     string `validate:"omitempty,product_id,max=16"`
	Name   string `validate:"required,notblank"`
	Status string `validate:"omitempty,notblank"`
}

func TestValidateStruct(t *testing.T) {
	assert.Empty(t, ValidateStruct(sample{ID: "LOT-1", Name: "Coffee"}))
	assert.Empty(t, ValidateStruct(sample{Name: "Coffee"}))

	errs := ValidateStruct(sample{ID: "bad/id", Name: "  "})
	require.Len(t, errs, 2)
	assert.Equal(t, "sample.ID", errs[0].FailedField)
	assert.Equal(t, "product_id", errs[0].Tag)
	assert.Equal(t, "notblank", errs[1].Tag)
}

func TestSummary(t *testing.T) {
	errs := ValidateStruct(sample{ID: "ABCDEFGHIJKLMNOPQRSTUVWXYZ", Name: "x"})
	require.Len(t, errs, 1)
	assert.Equal(t, "sample.ID failed max=16", Summary(errs))
}
