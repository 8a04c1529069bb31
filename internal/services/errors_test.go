package services_test

import (
	"errors"
	"testing"

	"veracity/internal/services"
)

func TestWrapTagsAndChains(t *testing.T) {
	cause := errors.New("connection refused")
	err := services.Wrap(services.ErrAdapterUnavailable, "manipulation", "post", "request failed", cause)

	if !errors.Is(err, services.ErrAdapterUnavailable) {
		t.Fatalf("marker lost: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause lost: %v", err)
	}
	want := "adapter unavailable: manipulation: post: request failed: connection refused"
	if err.Error() != want {
		t.Fatalf("message = %q, want %q", err.Error(), want)
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("nil marker should default transient: %v", err)
	}
	if err.Error() != "transient failure: service failure" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		marker error
		want   bool
	}{
		{services.ErrAdapterUnavailable, true},
		{services.ErrInvalidEvidence, true},
		{services.ErrTransient, true},
		{services.ErrRetryExhausted, true},
		{services.ErrConfiguration, false},
		{services.ErrOverrideConflict, false},
		{services.ErrNotFound, false},
	}
	for _, tc := range cases {
		err := services.Wrap(tc.marker, "test", "op", "detail", nil)
		if got := services.Retryable(err); got != tc.want {
			t.Fatalf("Retryable(%v) = %v, want %v", tc.marker, got, tc.want)
		}
	}

	if !services.Retryable(errors.New("untagged")) {
		t.Fatal("untagged errors default to retryable")
	}
}
