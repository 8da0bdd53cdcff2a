package errors

import (
	"edgetrade/pkg/errors/ecode"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ecode.BrokerErr, "place order"))
}

func TestDecodeErr(t *testing.T) {
	code, msg := DecodeErr(nil)
	assert.Equal(t, ecode.Success, code)
	assert.Equal(t, "ok", msg)

	err := Broker(New("timeout"), "place order")
	code, msg = DecodeErr(fmt.Errorf("slice 3: %w", err))
	assert.Equal(t, ecode.BrokerErr, code)
	assert.Equal(t, "slice 3: place order: timeout", msg)

	code, _ = DecodeErr(New("plain"))
	assert.Equal(t, ecode.Unknown, code)
}

func TestIsCode(t *testing.T) {
	inner := Broker(New("rejected"), "cancel")
	outer := Partial(inner, "2 of 5 legs failed")

	require.True(t, IsCode(outer, ecode.PartialExecution))
	require.True(t, IsCode(outer, ecode.BrokerErr))
	require.False(t, IsCode(outer, ecode.ValidateErr))
	assert.Equal(t, ecode.PartialExecution, CodeOf(outer))
}

func TestWithCodeDefaultMessage(t *testing.T) {
	err := WithCode(ecode.ConfigErr, "")
	assert.Equal(t, "configuration error", err.Error())
}
