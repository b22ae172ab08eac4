package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldHelpers(t *testing.T) {
	attr := Backend("file")
	assert.Equal(t, FieldBackend, attr.Key)
	assert.Equal(t, "file", attr.Value.String())

	attr = Error(errors.New("boom"))
	assert.Equal(t, FieldError, attr.Key)
	assert.Equal(t, "boom", attr.Value.String())

	attr = Duration(125)
	assert.Equal(t, FieldDuration, attr.Key)
	assert.Equal(t, int64(125), attr.Value.Int64())

	attr = Status(202)
	assert.Equal(t, FieldStatus, attr.Key)
	assert.Equal(t, int64(202), attr.Value.Int64())

	attr = Operation("select_users")
	assert.Equal(t, FieldOperation, attr.Key)
	assert.Equal(t, "select_users", attr.Value.String())
}
