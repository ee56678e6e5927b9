package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesExistingCode(t *testing.T) {
	inner := New(CodeReplay, "duplicate delivery")
	wrapped := Wrap(inner, CodeInternal, "processing failed")

	assert.Equal(t, CodeReplay, CodeOf(wrapped))
	assert.True(t, HasCode(wrapped, CodeReplay))
	assert.False(t, HasCode(wrapped, CodeInternal))
}

func TestWrapClassifiesPlainErrors(t *testing.T) {
	err := Wrap(fmt.Errorf("dial tcp: connection refused"), CodeTransient, "grading service unreachable")

	assert.Equal(t, CodeTransient, CodeOf(err))
	assert.ErrorContains(t, err, "grading service unreachable")
}

func TestCodeOfUnclassifiedError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		code Code
		want bool
	}{
		{CodeTransient, true},
		{CodeTimeout, true},
		{CodePermanent, false},
		{CodeUnauthorized, false},
		{CodeReplay, false},
		{CodeValidation, false},
		{CodeNotFound, false},
		{CodeRateLimited, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(New(tt.code, "x")))
		})
	}
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	err := Wrap(errors.New("db down"), CodeTransient, "insert failed")
	assert.True(t, errors.Is(err, &Error{Code: CodeTransient}))
	assert.False(t, errors.Is(err, &Error{Code: CodePermanent}))
}

func TestUnwrapChain(t *testing.T) {
	root := errors.New("root cause")
	err := Wrap(root, CodePermanent, "rejected")
	assert.True(t, errors.Is(err, root))
}
