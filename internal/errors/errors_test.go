package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"codeberg.org/mutker/imuctl/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryMessages(t *testing.T) {
	errFactory := errors.New()

	err := errFactory.New(errors.ErrTimeout)
	assert.Equal(t, "Operation timed out", err.Error())
	assert.Equal(t, errors.ErrTimeout, err.Code())

	wrapped := errFactory.Wrap(errors.ErrIO, stderrors.New("bus fault"))
	assert.Equal(t, "Sensor read failed: bus fault", wrapped.Error())

	custom := errFactory.WithMessage(errors.ErrorCode("custom_code"), "custom message")
	assert.Equal(t, "custom message", custom.Error())

	unknown := errFactory.New(errors.ErrorCode("not_registered"))
	assert.Equal(t, "not_registered", unknown.Error())
}

func TestWithDataKeepsCode(t *testing.T) {
	errFactory := errors.New()

	err := errFactory.New(errors.ErrConvergenceFailure).WithData(42)
	assert.Equal(t, errors.ErrConvergenceFailure, err.Code())
	assert.Equal(t, 42, err.GetData())
	assert.Contains(t, err.Error(), "42")
}

func TestHasCode(t *testing.T) {
	errFactory := errors.New()

	inner := errFactory.Wrap(errors.ErrTimeout, stderrors.New("deadline"))
	outer := errFactory.Wrap(errors.ErrCalibrate, inner)
	plain := fmt.Errorf("context: %w", outer)

	assert.True(t, errors.HasCode(plain, errors.ErrCalibrate))
	assert.True(t, errors.HasCode(plain, errors.ErrTimeout))
	assert.False(t, errors.HasCode(plain, errors.ErrIO))
	assert.False(t, errors.HasCode(nil, errors.ErrIO))
	assert.Equal(t, errors.ErrCalibrate, errors.CodeOf(plain))
	assert.Equal(t, errors.ErrorCode(""), errors.CodeOf(stderrors.New("plain")))
}

func TestIsMatchesByCode(t *testing.T) {
	errFactory := errors.New()

	err := fmt.Errorf("read: %w", errFactory.Wrap(errors.ErrIO, stderrors.New("nack")))
	require.ErrorIs(t, err, errFactory.New(errors.ErrIO))
	assert.NotErrorIs(t, err, errFactory.New(errors.ErrTimeout))
}
