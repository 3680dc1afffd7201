package resilience

import (
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("503"), 503), true},
		{"wrapped explicit", fmt.Errorf("download: %w", NewTransientError(errors.New("x"), 429)), true},
		{"timeout", timeoutErr{}, true},
		{"unexpected eof", fmt.Errorf("write file: %w", io.ErrUnexpectedEOF), true},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"ftp transient reply", &textproto.Error{Code: 421, Msg: "Too many connections"}, true},
		{"ftp permanent reply", &textproto.Error{Code: 550, Msg: "No such file"}, false},
		{"http retries exhausted", eris.Wrap(errors.New("http 503 from x"), "all retries exhausted"), true},
		{"text pattern", errors.New("read tcp: connection reset by peer"), true},
		{"permanent", errors.New("download: unexpected status 404"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 301, 400, 403, 404, 501} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestIsTransientFTPCode(t *testing.T) {
	assert.True(t, IsTransientFTPCode(421))
	assert.True(t, IsTransientFTPCode(450))
	assert.False(t, IsTransientFTPCode(550))
	assert.False(t, IsTransientFTPCode(226))
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	te := NewTransientError(inner, 502)
	assert.ErrorIs(t, te, inner)
	assert.Equal(t, "inner", te.Error())
	assert.Equal(t, 502, te.StatusCode)
}
