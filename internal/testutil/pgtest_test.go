package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverToErrorCapturesPanic(t *testing.T) {
	err := func() (err error) {
		defer recoverToError(&err)
		panic("rootless Docker not found")
	}()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "rootless Docker not found")
}

func TestRecoverToErrorLeavesNilOnNormalReturn(t *testing.T) {
	err := func() (err error) {
		defer recoverToError(&err)
		return nil
	}()

	assert.NoError(t, err)
}
