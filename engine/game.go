package engine

import (
	"github.com/spaghettifunk/spark/engine/renderer/native"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	// Set by New before FnInitialize runs.
	Systems      *Systems
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnShutdown   Shutdown
}

type Initialize func() error
type Update func(deltaTime float64) error
type Render func(ctx native.Context, deltaTime float64) error
type Shutdown func() error
