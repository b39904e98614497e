package status_test

import (
	"testing"

	"github.com/bridgarr/bridgarr/internal/status"
)

func TestTerminal(t *testing.T) {
	t.Parallel()

	terminal := []status.Status{status.Completed, status.Failed, status.Deleted}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	active := []status.Status{status.Queued, status.Downloading, status.Extracting}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestDisplay(t *testing.T) {
	t.Parallel()

	if got := status.Queued.Display(); got != "Queued" {
		t.Errorf("Display() = %q, want Queued", got)
	}
	if got := status.Status("bogus").Display(); got != "Downloading" {
		t.Errorf("unknown states display as Downloading, got %q", got)
	}
}
