// Package goroutine runs background work so that a panic is logged instead
// of taking the server down.
package goroutine

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

const (
	// StackTraceBufferSize is the buffer size for stack trace collection
	StackTraceBufferSize = 4096
)

// Recover recovers from panics in goroutines and logs them.
// If logger is nil the panic goes to stderr.
func Recover(name string, logger *zap.SugaredLogger) {
	if r := recover(); r != nil {
		buf := make([]byte, StackTraceBufferSize)
		n := runtime.Stack(buf, false)

		if logger != nil {
			logger.Errorw("Goroutine panic recovered",
				"goroutine", name,
				"panic", r,
				"stack", string(buf[:n]))
		} else {
			fmt.Fprintf(os.Stderr, "PANIC in goroutine %s (no logger): %v\n%s\n",
				name, r, string(buf[:n]))
		}
	}
}

// Go runs fn on a new goroutine guarded by Recover. The returned channel is
// closed when fn returns or panics.
func Go(name string, logger *zap.SugaredLogger, fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer Recover(name, logger)
		fn()
	}()
	return done
}

// Group tracks a set of named background goroutines so shutdown can wait
// for all of them
type Group struct {
	logger *zap.SugaredLogger
	wg     sync.WaitGroup
}

// NewGroup creates an empty group
func NewGroup(logger *zap.SugaredLogger) *Group {
	return &Group{logger: logger}
}

// Go starts fn as a member of the group
func (g *Group) Go(name string, fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer Recover(name, g.logger)
		fn()
	}()
}

// Wait blocks until every member has returned
func (g *Group) Wait() {
	g.wg.Wait()
}

// WaitChan returns a channel closed once Wait would return, for use in a
// select with a deadline
func (g *Group) WaitChan() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	return done
}
