package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

type componentStat struct {
	warns  int64
	errors int64
}

type rpcStat struct {
	calls int64
}

var (
	ordersCreated   int64
	ordersSubmitted int64
	ordersFilled    int64
	ordersFailed    int64
	components      sync.Map // map[string]*componentStat
	rpcCalls        sync.Map // map[string]*rpcStat
)

func recordWarn(component string) {
	v, _ := components.LoadOrStore(component, &componentStat{})
	atomic.AddInt64(&v.(*componentStat).warns, 1)
}

func recordError(component string) {
	v, _ := components.LoadOrStore(component, &componentStat{})
	atomic.AddInt64(&v.(*componentStat).errors, 1)
}

func IncrementOrderCreated() {
	atomic.AddInt64(&ordersCreated, 1)
}

func IncrementOrderSubmission() {
	atomic.AddInt64(&ordersSubmitted, 1)
}

func IncrementOrderFilled() {
	atomic.AddInt64(&ordersFilled, 1)
}

func IncrementOrderFailed() {
	atomic.AddInt64(&ordersFailed, 1)
}

// RecordRPCCall counts one outbound JSON-RPC operation by name.
func RecordRPCCall(op string) {
	v, _ := rpcCalls.LoadOrStore(op, &rpcStat{})
	atomic.AddInt64(&v.(*rpcStat).calls, 1)
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(log)
			}
		}
	}()
}

// StartReport begins periodic logging of runtime and order statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(log *Log) {
	componentData := map[string]map[string]int64{}
	components.Range(func(k, v any) bool {
		cs := v.(*componentStat)
		componentData[k.(string)] = map[string]int64{
			"warns":  atomic.LoadInt64(&cs.warns),
			"errors": atomic.LoadInt64(&cs.errors),
		}
		return true
	})

	rpcData := map[string]int64{}
	rpcCalls.Range(func(k, v any) bool {
		rpcData[k.(string)] = atomic.LoadInt64(&v.(*rpcStat).calls)
		return true
	})

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	fields := Fields{
		"orders_created":   atomic.LoadInt64(&ordersCreated),
		"orders_submitted": atomic.LoadInt64(&ordersSubmitted),
		"orders_filled":    atomic.LoadInt64(&ordersFilled),
		"orders_failed":    atomic.LoadInt64(&ordersFailed),
		"goroutines":       runtime.NumGoroutine(),
		"heap_mb":          int64(mem.HeapAlloc) / 1024 / 1024,
		"components":       componentData,
		"rpc_calls":        rpcData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")
}
