package engine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/spark/engine/core"
	"github.com/spaghettifunk/spark/engine/renderer/native"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "spark.toml")
	src := fmt.Sprintf("[logging]\nlevel = \"error\"\n\n[content]\nroot = '%s'\n\n[jobs]\nworkers = 2\n", filepath.Join(dir, "content"))
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type counters struct {
	initialized, updates, renders, shutdowns int
}

func newGame(configPath string, frames uint64) (*Game, *counters) {
	c := &counters{}
	g := &Game{
		ApplicationConfig: &ApplicationConfig{Name: "test", ConfigPath: configPath, LogLevel: core.ErrorLevel, MaxFrames: frames},
	}
	g.FnInitialize = func() error {
		c.initialized++
		return nil
	}
	g.FnUpdate = func(float64) error {
		c.updates++
		return nil
	}
	g.FnRender = func(ctx native.Context, _ float64) error {
		if ctx == nil {
			return errors.New("render without a context")
		}
		c.renders++
		return nil
	}
	g.FnShutdown = func() error {
		c.shutdowns++
		return nil
	}
	return g, c
}

func TestRunStopsAfterMaxFrames(t *testing.T) {
	g, c := newGame(writeConfig(t), 5)
	e, err := New(g)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if g.Systems == nil || g.Systems.Content == nil || g.Systems.Jobs == nil {
		t.Fatalf("New did not hand the systems to the game")
	}
	if err := e.Run(); !errors.Is(err, core.ErrInvalidArgument) {
		t.Fatalf("Run before Initialize:\nhave %v\nwant %v", err, core.ErrInvalidArgument)
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !g.Systems.Repository.IsOpen() {
		t.Fatalf("content repository not opened")
	}
	if err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.initialized != 1 || c.updates != 5 || c.renders != 5 || e.FrameCount() != 5 {
		t.Fatalf("counters: have %+v after %d frames", *c, e.FrameCount())
	}
	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := e.Shutdown(); err != nil || c.shutdowns != 1 {
		t.Fatalf("second Shutdown: %v, game shut down %d times", err, c.shutdowns)
	}
	if g.Systems.Repository.IsOpen() {
		t.Fatalf("content repository left open")
	}
}

func TestQuitEventStopsRun(t *testing.T) {
	g, c := newGame(writeConfig(t), 0)
	g.FnUpdate = func(float64) error {
		c.updates++
		if c.updates == 3 {
			core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
		}
		return nil
	}
	e, err := New(g)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer e.Shutdown()
	if err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if e.IsRunning() || c.updates != 3 || c.renders != 3 {
		t.Fatalf("quit ignored: %+v", *c)
	}
}

func TestUpdateErrorStopsRun(t *testing.T) {
	boom := errors.New("boom")
	g, _ := newGame(writeConfig(t), 0)
	g.FnUpdate = func(float64) error { return boom }
	e, err := New(g)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer e.Shutdown()
	if err := e.Run(); !errors.Is(err, boom) {
		t.Fatalf("Run:\nhave %v\nwant %v", err, boom)
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, core.ErrInvalidArgument) {
		t.Fatalf("New(nil):\nhave %v\nwant %v", err, core.ErrInvalidArgument)
	}
	g, _ := newGame(filepath.Join(t.TempDir(), "missing.toml"), 1)
	if _, err := New(g); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing config:\nhave %v\nwant %v", err, os.ErrNotExist)
	}
}

func TestSystemsFromConfig(t *testing.T) {
	config := core.DefaultConfig()
	config.Content.Root = t.TempDir()
	config.Renderer.SampleCount = 4
	config.Renderer.OptimizeDepthForSingleSurface = true
	sm, err := NewSystems(config, nil)
	if err != nil {
		t.Fatalf("NewSystems: %v", err)
	}
	defer sm.Shutdown()
	if ms := sm.Multisample(); !ms.IsMultisampled() || ms.Count != 4 || !ms.ResolveShaderResource {
		t.Fatalf("Multisample: have %+v", ms)
	}
	o := sm.RenderTargetOptions("gbuffer")
	if o.Name != "gbuffer" || !o.CreateDepthBuffer || !o.OptimizeDepthForSingleSurface || o.DepthFormat != config.DepthFormat() {
		t.Fatalf("RenderTargetOptions: have %+v", o)
	}
}
