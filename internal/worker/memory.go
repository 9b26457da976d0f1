package worker

import (
	"context"
	"runtime"

	"go.uber.org/zap"
)

func reportMemory(logger *zap.Logger) func(context.Context) {
	return func(context.Context) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		logger.Info("memory stats",
			zap.Uint64("alloc_mib", m.Alloc/1024/1024),
			zap.Uint64("total_alloc_mib", m.TotalAlloc/1024/1024),
			zap.Uint64("sys_mib", m.Sys/1024/1024),
			zap.Uint32("num_gc", m.NumGC),
		)
	}
}
