package engine

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/spark/engine/core"
	"github.com/spaghettifunk/spark/engine/renderer/native"
	"github.com/spaghettifunk/spark/engine/renderer/null"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *core.Config
	systems      *Systems
	device       native.Device
	isRunning    atomic.Bool
	frameCount   uint64
	lastTime     time.Time
}

// New boots the engine for g: it reads the configuration and creates the
// systems, without starting any of them.
func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, fmt.Errorf("%w: game and application config are required", core.ErrInvalidArgument)
	}
	e := &Engine{
		currentStage: EngineStageBooting,
		gameInstance: g,
	}

	config := core.DefaultConfig()
	if path := g.ApplicationConfig.ConfigPath; path != "" {
		c, err := core.LoadConfig(path)
		if err != nil {
			core.LogError("failed to load configuration '%s': %s", path, err.Error())
			return nil, err
		}
		config = c
		level, err := core.ParseLogLevel(config.Logging.Level)
		if err != nil {
			return nil, err
		}
		core.SetLogLevel(level)
	} else {
		core.SetLogLevel(g.ApplicationConfig.LogLevel)
	}
	e.config = config

	// The null device records every native call; a GPU backend plugs in here.
	e.device = null.NewDevice()

	sm, err := NewSystems(config, e.device)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	e.systems = sm
	g.Systems = sm

	e.currentStage = EngineStageBootComplete
	return e, nil
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageBootComplete {
		return fmt.Errorf("%w: engine initialized in stage %d", core.ErrInvalidArgument, e.currentStage)
	}
	e.currentStage = EngineStageInitializing

	// initialize events
	if !core.EventInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)

	// initialize subsystems
	if err := e.systems.Initialize(); err != nil {
		return err
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("%s initialized (content root '%s')", e.gameInstance.ApplicationConfig.Name, e.config.Content.Root)
	return nil
}

// Run calls the game update and render routines once per frame until
// EVENT_CODE_APPLICATION_QUIT fires or the configured frame count is reached.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("%w: engine run in stage %d", core.ErrInvalidArgument, e.currentStage)
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)
	e.lastTime = time.Now()

	maxFrames := e.gameInstance.ApplicationConfig.MaxFrames
	ctx := e.device.ImmediateContext()

	for e.isRunning.Load() {
		currentTime := time.Now()
		delta := currentTime.Sub(e.lastTime).Seconds()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("Game update failed, shutting down: %s", err.Error())
				e.isRunning.Store(false)
				return err
			}
		}

		// Call the game's render routine.
		if e.gameInstance.FnRender != nil {
			if err := e.gameInstance.FnRender(ctx, delta); err != nil {
				core.LogError("Game render failed, shutting down: %s", err.Error())
				e.isRunning.Store(false)
				return err
			}
		}

		e.frameCount++
		e.lastTime = currentTime
		if maxFrames > 0 && e.frameCount >= maxFrames {
			e.isRunning.Store(false)
		}
	}

	core.LogInfo("stopped after %d frames", e.frameCount)
	return nil
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogError("game shutdown: %s", err.Error())
		}
	}
	core.EventUnregister(core.EVENT_CODE_APPLICATION_QUIT, e)
	if err := e.systems.Shutdown(); err != nil {
		return err
	}
	if err := core.EventShutdown(); err != nil {
		return err
	}
	return nil
}

func (e *Engine) Config() *core.Config {
	return e.config
}

func (e *Engine) Device() native.Device {
	return e.device
}

func (e *Engine) FrameCount() uint64 {
	return e.frameCount
}

func (e *Engine) IsRunning() bool {
	return e.isRunning.Load()
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
		return true
	}
	return false
}
