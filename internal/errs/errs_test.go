package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/reanhealth/botgateway/internal/errs"
)

func TestKindOf(t *testing.T) {
	t.Parallel()
	if got := errs.KindOf(nil); got != "" {
		t.Fatalf("KindOf(nil) = %q, want empty", got)
	}
	if got := errs.KindOf(errors.New("plain")); got != errs.KindInternal {
		t.Fatalf("KindOf(plain) = %q, want internal", got)
	}
	err := errs.New(errs.KindNotFound, "session %s missing", "abc")
	if got := errs.KindOf(err); got != errs.KindNotFound {
		t.Fatalf("KindOf = %q, want not_found", got)
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	t.Parallel()
	inner := errs.New(errs.KindExternalService, "provider send failed")
	wrapped := fmt.Errorf("dispatch: %w", inner)
	if !errs.IsKind(wrapped, errs.KindExternalService) {
		t.Fatalf("kind lost through fmt.Errorf wrapping")
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()
	cases := []struct {
		kind errs.Kind
		want bool
	}{
		{errs.KindUnauthorized, false},
		{errs.KindValidation, false},
		{errs.KindNotFound, true},
		{errs.KindExternalService, true},
		{errs.KindInternal, true},
	}
	for _, tc := range cases {
		if got := errs.Retryable(errs.New(tc.kind, "x")); got != tc.want {
			t.Errorf("Retryable(%s) = %v, want %v", tc.kind, got, tc.want)
		}
	}
	if errs.Retryable(nil) {
		t.Fatal("Retryable(nil) = true, want false")
	}
}

func TestUnwrap(t *testing.T) {
	t.Parallel()
	cause := errors.New("connection refused")
	err := errs.Wrap(errs.KindExternalService, cause, "post messages")
	if !errors.Is(err, cause) {
		t.Fatal("wrapped cause not reachable via errors.Is")
	}
}
