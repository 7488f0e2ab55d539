package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped explicit", fmt.Errorf("call: %w", NewTransientError(errors.New("429"), 429)), true},
		{"eris wrapped explicit", eris.Wrap(NewTransientError(errors.New("429"), 429), "perplexity: chat"), true},
		{"plain", errors.New("invalid input"), false},
		{"conn reset", fmt.Errorf("write: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"deadline", fmt.Errorf("lookup: %w", context.DeadlineExceeded), true},
		{"cancelled", fmt.Errorf("lookup: %w", context.Canceled), false},
		{"circuit open", eris.Wrap(ErrCircuitOpen, "provider hunter"), true},
		{"limiter deadline", errors.New("rate: Wait(n=1) would exceed context deadline"), true},
		{"io timeout text", errors.New("read tcp 10.0.0.1: i/o timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("status %d should be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, http.StatusUnprocessableEntity} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("status %d should not be transient", code)
		}
	}
}

func TestClassify(t *testing.T) {
	if got := Classify(NewTransientError(errors.New("x"), 503)); got != "transient" {
		t.Errorf("got %q", got)
	}
	if got := Classify(errors.New("bad key")); got != "permanent" {
		t.Errorf("got %q", got)
	}
}
