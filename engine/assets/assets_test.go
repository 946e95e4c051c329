package assets

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spaghettifunk/spark/engine/assets/loaders"
	"github.com/spaghettifunk/spark/engine/content/repository"
	"github.com/spaghettifunk/spark/engine/content/savable"
	"github.com/spaghettifunk/spark/engine/core"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	core.EventInitialize()
	os.Exit(m.Run())
}

type palette struct {
	colors []string
}

func (p *palette) Write(out *savable.Output) error {
	if err := out.WriteInt32(int32(len(p.colors))); err != nil {
		return err
	}
	for _, c := range p.colors {
		if err := out.WriteString(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *palette) Read(in *savable.Input) error {
	n, err := in.ReadInt32()
	if err != nil {
		return err
	}
	p.colors = make([]string, n)
	for i := range p.colors {
		if p.colors[i], err = in.ReadString(); err != nil {
			return err
		}
	}
	return nil
}

func newManager(t *testing.T) (*ContentManager, *repository.DirectoryRepository) {
	t.Helper()
	registry := savable.NewRegistry()
	if err := savable.Register[palette](registry, "Palette"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	repo := repository.NewDirectoryRepository(t.TempDir(), false)
	cm, err := NewContentManager(ContentManagerConfig{Repository: repo, Registry: registry, Overwrite: true})
	if err != nil {
		t.Fatalf("NewContentManager: %v", err)
	}
	if err := cm.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { cm.Shutdown() })
	return cm, repo
}

func TestLoadOnce(t *testing.T) {
	cm, repo := newManager(t)
	if err := savable.Save(repo, "palettes/warm.spk", &palette{colors: []string{"red", "orange"}}, savable.SaveOptions{Registry: cm.Registry()}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	const workers = 16
	results := make([]*palette, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = Load[*palette](cm, "palettes/warm.spk")
		}(i)
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("Load %d: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Fatalf("Load %d returned a different instance", i)
		}
	}
	if n := cm.Loads(); n != 1 {
		t.Fatalf("Loads: have %d, want 1", n)
	}
	if got := results[0].colors; len(got) != 2 || got[1] != "orange" {
		t.Fatalf("colors: have %v", got)
	}

	if _, err := Load[*loaders.Binary](cm, "palettes/warm.spk"); !errors.Is(err, core.ErrTypeMismatch) {
		t.Fatalf("Load as Binary:\nhave %v\nwant %v", err, core.ErrTypeMismatch)
	}
}

func TestUnloadAndEvict(t *testing.T) {
	cm, repo := newManager(t)
	if err := os.WriteFile(filepath.Join(repo.Root(), "shader.spv"), []byte{1, 0, 0, 0, 2, 0, 0, 0, 9}, 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := Load[*loaders.Binary](cm, "shader.spv")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if words := b.Words(); len(words) != 2 || words[1] != 2 {
		t.Fatalf("Words: have %v", words)
	}
	if !cm.IsLoaded("shader.spv") {
		t.Fatalf("not cached")
	}

	// A change reported by another repository is ignored.
	other := repository.NewDirectoryRepository(t.TempDir(), false)
	core.EventFire(core.EVENT_CODE_RESOURCE_FILE_CHANGED, other, core.EventContext{Data: "shader.spv"})
	if !cm.IsLoaded("shader.spv") {
		t.Fatalf("evicted by a foreign repository")
	}
	core.EventFire(core.EVENT_CODE_RESOURCE_FILE_CHANGED, repo, core.EventContext{Data: "shader.spv"})
	if cm.IsLoaded("shader.spv") {
		t.Fatalf("not evicted on change")
	}

	if _, err := Load[*loaders.Binary](cm, "shader.spv"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if n := cm.Loads(); n != 2 {
		t.Fatalf("Loads: have %d, want 2", n)
	}
	if !cm.Unload("shader.spv") || cm.Unload("shader.spv") {
		t.Fatalf("Unload should succeed once")
	}
}

func TestSaveCaches(t *testing.T) {
	cm, _ := newManager(t)
	p := &palette{colors: []string{"blue"}}
	if err := cm.Save("cold.spk", p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load[*palette](cm, "cold.spk")
	if err != nil || got != p {
		t.Fatalf("Load after Save: have %p, %v", got, err)
	}
	if cm.Loads() != 0 {
		t.Fatalf("Save result was loaded again")
	}
	if names := cm.Loaded(); len(names) != 1 || names[0] != "cold.spk" {
		t.Fatalf("Loaded: have %v", names)
	}
}

func TestLoadErrors(t *testing.T) {
	cm, _ := newManager(t)
	if _, err := Load[*palette](cm, "missing.spk"); err == nil {
		t.Fatalf("missing file loaded")
	}
	if _, err := Load[*palette](cm, "notes.txt"); !errors.Is(err, core.ErrUnknownType) {
		t.Fatalf("unknown extension:\nhave %v\nwant %v", err, core.ErrUnknownType)
	}
	if _, err := NewContentManager(ContentManagerConfig{}); !errors.Is(err, core.ErrInvalidArgument) {
		t.Fatalf("no repository:\nhave %v\nwant %v", err, core.ErrInvalidArgument)
	}
}
