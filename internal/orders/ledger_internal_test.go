package orders

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitWrapsEncodingFailures(t *testing.T) {
	l := &Ledger{Service: "test"}
	err := l.emit(context.Background(), TopicOrderStatusChanged, EventOrderStatusChanged, "o1", "", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode "+EventOrderStatusChanged)

	var unsupported *json.UnsupportedTypeError
	assert.ErrorAs(t, errors.Cause(err), &unsupported)
}
