package main

import (
	"testing"
	"time"

	"github.com/JonMunkholm/stockbook/internal/config"
	"github.com/JonMunkholm/stockbook/internal/core"
)

func TestServiceOptions(t *testing.T) {
	got := serviceOptions(config.ImportConfig{
		MaxConcurrent:    4,
		MaxWaitTime:      10 * time.Second,
		CommitWorkers:    6,
		CommitTimeout:    time.Minute,
		IdenticalDefault: "skip",
	})

	if got.IdenticalDefault != core.ActionSkip {
		t.Errorf("IdenticalDefault = %q, want skip from config", got.IdenticalDefault)
	}
	if got.MaxConcurrent != 1 {
		t.Errorf("MaxConcurrent = %d, want 1 for a single CLI import", got.MaxConcurrent)
	}
	if got.CommitWorkers != 6 || got.CommitTimeout != time.Minute || got.MaxWait != 10*time.Second {
		t.Errorf("options = %+v, want config values carried over", got)
	}
}
