package testbed

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/spark/engine"
	"github.com/spaghettifunk/spark/engine/assets"
	"github.com/spaghettifunk/spark/engine/core"
	"github.com/spaghettifunk/spark/engine/renderer/metadata"
	"github.com/spaghettifunk/spark/engine/renderer/native"
	"github.com/spaghettifunk/spark/engine/renderer/resource"
)

// SceneFile is where the testbed keeps its scene setup, relative to the content root.
const SceneFile = "scenes/testbed.spk"

type TestGame struct {
	*engine.Game
}

type gameState struct {
	frame uint64

	scene *SceneSetup
	// Sets of targets sharing a depth buffer, keyed by setup label.
	sets map[string]*resource.RenderTargetSet
	// Sets without sub-views, cleared and resolved whole every frame.
	flat []*resource.RenderTargetSet
	// Targets with sub-views rendered one per frame.
	layered []*resource.RenderTarget
	bound   map[*resource.RenderTarget]bool
}

func NewTestGame(configPath string, frames uint64) (*TestGame, error) {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				Name:       "Spark Testbed",
				ConfigPath: configPath,
				LogLevel:   core.DebugLevel,
				MaxFrames:  frames,
			},
			State: &gameState{
				sets:  make(map[string]*resource.RenderTargetSet),
				bound: make(map[*resource.RenderTarget]bool),
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

// DefaultScene is the setup written on first run: a G-buffer sharing one
// depth buffer and an array of shadow cubes.
func DefaultScene() *SceneSetup {
	return &SceneSetup{
		Title: "testbed",
		Targets: []*TargetSetup{
			{
				Label:      "gbuffer",
				Shape:      metadata.Shape2D,
				Size:       512,
				ArrayCount: 1,
				Formats:    []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA16Float, gputypes.TextureFormatRG16Float},
			},
			{
				Label:      "shadows",
				Shape:      metadata.ShapeCubeArray,
				Size:       256,
				ArrayCount: 2,
				Formats:    []gputypes.TextureFormat{gputypes.TextureFormatR32Float},
			},
		},
	}
}

func (g *TestGame) Initialize() error {
	core.LogInfo("initializing testbed...")
	sm := g.Systems
	if err := RegisterTypes(sm.Registry); err != nil {
		return err
	}

	scene, err := g.loadScene()
	if err != nil {
		return err
	}
	st := g.state()
	st.scene = scene

	for _, setup := range scene.Targets {
		if err := g.createTargets(setup); err != nil {
			_ = g.Shutdown()
			return err
		}
	}
	m := core.MetricsSnapshot()
	core.LogInfo("scene '%s': %d native textures, %d native views", scene.Title, m.NativeTextures, m.NativeViews)
	return nil
}

// loadScene reads the scene setup, writing the default one on first run.
func (g *TestGame) loadScene() (*SceneSetup, error) {
	cm := g.Systems.Content
	if !g.Systems.Repository.Exists(SceneFile) {
		core.LogInfo("writing default scene to '%s'", SceneFile)
		if err := cm.Save(SceneFile, DefaultScene()); err != nil {
			return nil, err
		}
		// Drop the cached instance so the scene is read back from disk.
		cm.Unload(SceneFile)
	}
	return assets.Load[*SceneSetup](cm, SceneFile)
}

func (g *TestGame) createTargets(setup *TargetSetup) error {
	sm := g.Systems
	st := g.state()

	shape := setup.Shape
	desc := metadata.TextureDescription{
		Width:      setup.Size,
		Height:     setup.Size,
		ArrayCount: setup.ArrayCount,
	}
	if ms := sm.Multisample(); ms.IsMultisampled() {
		if multisampled, ok := multisampledShapes[shape]; ok {
			shape = multisampled
			desc.Multisample = ms
		}
	}

	set, err := resource.NewRenderTargetSet(sm.Device, shape, desc, setup.Formats, sm.RenderTargetOptions(setup.Label))
	if err != nil {
		return fmt.Errorf("testbed target '%s': %w", setup.Label, err)
	}
	st.sets[setup.Label] = set
	if !shape.HasSubResources() {
		st.flat = append(st.flat, set)
		return nil
	}
	st.layered = append(st.layered, set.Targets()...)
	return nil
}

var multisampledShapes = map[metadata.ResourceShape]metadata.ResourceShape{
	metadata.Shape2D:        metadata.Shape2DMS,
	metadata.Shape2DArray:   metadata.Shape2DMSArray,
	metadata.ShapeCube:      metadata.ShapeCubeMS,
	metadata.ShapeCubeArray: metadata.ShapeCubeMSArray,
}

func (g *TestGame) Update(deltaTime float64) error {
	st := g.state()
	st.frame++
	// Binding the whole target once expands optimized depth buffers.
	for _, set := range st.sets {
		for _, rt := range set.Targets() {
			if st.bound[rt] {
				continue
			}
			if err := rt.NotifyOnFirstBind(); err != nil {
				return err
			}
			st.bound[rt] = true
		}
	}
	return nil
}

func (g *TestGame) Render(ctx native.Context, deltaTime float64) error {
	st := g.state()
	clearColor := gputypes.Color{R: 0.1, G: 0.1, B: 0.15, A: 1}

	for _, set := range st.flat {
		if err := set.Clear(metadata.ClearAll, clearColor, 1, 0); err != nil {
			return err
		}
		if err := set.ResolveResource(ctx); err != nil {
			return err
		}
	}

	// Layered targets render one sub-view per frame: a face of a cube, or a
	// cube of a cube array.
	for _, rt := range st.layered {
		total := rt.Shape().TotalSubResources(rt.Description().ArrayCount)
		if d := metadata.DescribeShape(rt.Shape()); d.IsCube && d.IsArray {
			total = rt.Description().ArrayCount
		}
		sub := rt.GetSubRenderTarget(int(st.frame % uint64(total)))
		if sub == nil {
			return fmt.Errorf("render target '%s' has no sub-view for frame %d", rt.Name(), st.frame)
		}
		if err := sub.Clear(metadata.ClearTarget|metadata.ClearDepth, gputypes.Color{}, 1, 0); err != nil {
			return err
		}
		if err := sub.ResolveResource(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (g *TestGame) Shutdown() error {
	st := g.state()
	for label, set := range st.sets {
		set.Dispose()
		delete(st.sets, label)
	}
	st.flat = nil
	st.layered = nil
	clear(st.bound)

	m := core.MetricsSnapshot()
	core.LogInfo("testbed done after %d frames: %d sub-views, %d resolves, %d external writes, %d live textures",
		st.frame, m.SubViews, m.Resolves, m.ExternalWrites, m.NativeTextures)
	if m.NativeTextures != 0 || m.NativeViews != 0 {
		return fmt.Errorf("%d native textures and %d views still alive", m.NativeTextures, m.NativeViews)
	}
	return nil
}
