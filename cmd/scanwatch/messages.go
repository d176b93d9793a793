package main

import (
	"time"

	"github.com/sevigo/audit-scanner/internal/core"
	"github.com/sevigo/audit-scanner/internal/storage"
)

// Indicates that the store connection has been opened.
type storeInitializedMsg struct {
	store   storage.Store
	cleanup func()
	err     error
}

// Indicates that a fleet status refresh has completed.
type statusLoadedMsg struct {
	repos []*core.Repository
	err   error
}

// Fires on every refresh interval tick.
type tickMsg time.Time
