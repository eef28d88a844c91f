package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestUnavailable(t *testing.T) {
	err := fmt.Errorf("snapshot: %w", Unavailable("gcs", "create bucket", context.DeadlineExceeded))

	if !IsUnavailable(err) {
		t.Fatal("wrapped StorageUnavailableError not detected")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("cause should stay reachable through Unwrap")
	}

	var ue *StorageUnavailableError
	if !errors.As(err, &ue) || ue.Backend != "gcs" || ue.Op != "create bucket" {
		t.Errorf("unexpected error fields: %+v", ue)
	}
}

func TestIsUnavailable_Other(t *testing.T) {
	if IsUnavailable(ErrNotFound) {
		t.Error("ErrNotFound is not a StorageUnavailableError")
	}
	if IsUnavailable(nil) {
		t.Error("nil is not a StorageUnavailableError")
	}
}
