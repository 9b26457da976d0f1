package config

import "time"

// Worker intervals
const (
	// MemoryReportInterval defines how often runtime memory usage is logged
	MemoryReportInterval = 30 * time.Second

	// SyncWorkerConcurrency bounds how many hikes are pushed to the remote at once
	SyncWorkerConcurrency = 4

	// ShutdownTimeout bounds the graceful HTTP shutdown and the final session stop
	ShutdownTimeout = 10 * time.Second
)
