package savable

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spaghettifunk/spark/engine/content/primitive"
	"github.com/spaghettifunk/spark/engine/content/repository"
	"github.com/spaghettifunk/spark/engine/core"
	"github.com/spaghettifunk/spark/engine/systems"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

type mesh struct {
	name     string
	vertices []float32
}

func (m *mesh) Name() string { return m.name }

func (m *mesh) Write(out *Output) error {
	if err := out.WriteString(m.name); err != nil {
		return err
	}
	return primitive.WriteArray(out.Writer, m.vertices)
}

func (m *mesh) Read(in *Input) (err error) {
	if m.name, err = in.ReadString(); err != nil {
		return err
	}
	m.vertices, err = primitive.ReadArray[float32](in.Reader)
	return err
}

type texture struct {
	width uint32
}

func (t *texture) Write(out *Output) error { return out.WriteUint32(t.width) }

func (t *texture) Read(in *Input) (err error) {
	t.width, err = in.ReadUint32()
	return err
}

type node struct {
	name     string
	parent   *node
	children []*node
	mesh     *mesh
}

func (n *node) Write(out *Output) error {
	if err := out.WriteString(n.name); err != nil {
		return err
	}
	if err := out.WriteSharedSavable(n.parent); err != nil {
		return err
	}
	if err := out.WriteInt32(int32(len(n.children))); err != nil {
		return err
	}
	for _, c := range n.children {
		if err := out.WriteSharedSavable(c); err != nil {
			return err
		}
	}
	return out.WriteExternalSavable(n.mesh)
}

func (n *node) Read(in *Input) (err error) {
	if n.name, err = in.ReadString(); err != nil {
		return err
	}
	if n.parent, err = As[*node](in.ReadSharedSavable()); err != nil {
		return err
	}
	count, err := in.ReadInt32()
	if err != nil {
		return err
	}
	for i := int32(0); i < count; i++ {
		c, err := As[*node](in.ReadSharedSavable())
		if err != nil {
			return err
		}
		n.children = append(n.children, c)
	}
	n.mesh, err = As[*mesh](in.ReadExternalSavable())
	return err
}

type scene struct {
	root *node
}

func (s *scene) Write(out *Output) error { return out.WriteSharedSavable(s.root) }

func (s *scene) Read(in *Input) (err error) {
	s.root, err = As[*node](in.ReadSharedSavable())
	return err
}

// blob has no Savable implementation and needs its own writer.
type blob struct {
	data []byte
}

type blobWriter struct {
	fail error
	// gate holds writes until it is closed.
	gate chan struct{}
}

func (w *blobWriter) TargetType() reflect.Type { return reflect.TypeOf((*blob)(nil)) }

func (w *blobWriter) Extension() string { return ".bin" }

func (w *blobWriter) WriteExternal(dst io.Writer, value any, _ *ExternalReferenceHandler, _ *WritePass) error {
	if w.gate != nil {
		<-w.gate
	}
	if w.fail != nil {
		return w.fail
	}
	_, err := dst.Write(value.(*blob).data)
	return err
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, err := range []error{
		Register[mesh](r, "Mesh"),
		Register[texture](r, ""),
		Register[node](r, "Node"),
		Register[scene](r, "Scene"),
	} {
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return r
}

func newJobs(t *testing.T) *systems.JobSystem {
	t.Helper()
	js, err := systems.NewJobSystem(2, 0)
	if err != nil {
		t.Fatalf("NewJobSystem: %v", err)
	}
	t.Cleanup(func() { js.Shutdown() })
	return js
}

func newHandler(t *testing.T, options HandlerOptions) (*ExternalReferenceHandler, *repository.DirectoryRepository) {
	t.Helper()
	repo, ok := options.Repository.(*repository.DirectoryRepository)
	if !ok {
		repo = repository.NewDirectoryRepository(t.TempDir(), false)
		if err := repo.Open(); err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() {
			if repo.IsOpen() {
				repo.Close()
			}
		})
		options.Repository = repo
	}
	if options.Jobs == nil {
		options.Jobs = newJobs(t)
	}
	if options.Registry == nil {
		options.Registry = newRegistry(t)
	}
	h, err := NewExternalReferenceHandler(options)
	if err != nil {
		t.Fatalf("NewExternalReferenceHandler: %v", err)
	}
	return h, repo
}

func TestRegistry(t *testing.T) {
	r := newRegistry(t)
	if name, ok := r.TypeName(&texture{}); !ok || name != "texture" {
		t.Fatalf("TypeName(texture): have %q, %v", name, ok)
	}
	if err := Register[mesh](r, "Other"); !errors.Is(err, core.ErrInvalidArgument) {
		t.Fatalf("registering *mesh twice:\nhave %v\nwant %v", err, core.ErrInvalidArgument)
	}
	if err := Register[texture](r, "Mesh"); !errors.Is(err, core.ErrInvalidArgument) {
		t.Fatalf("reusing the name Mesh:\nhave %v\nwant %v", err, core.ErrInvalidArgument)
	}
	if _, err := r.New("Missing"); !errors.Is(err, core.ErrUnknownType) {
		t.Fatalf("New(Missing):\nhave %v\nwant %v", err, core.ErrUnknownType)
	}
	if _, err := As[*mesh](&texture{}, nil); !errors.Is(err, core.ErrTypeMismatch) {
		t.Fatalf("As[*mesh](texture):\nhave %v\nwant %v", err, core.ErrTypeMismatch)
	}
}

func TestProcessSavableWritesOnce(t *testing.T) {
	h, repo := newHandler(t, HandlerOptions{Overwrite: true})
	before := core.MetricsSnapshot().ExternalWrites

	rock := &mesh{name: "rock", vertices: []float32{1, 2, 3}}
	first, err := ProcessSavable(h, rock)
	if err != nil {
		t.Fatalf("ProcessSavable: %v", err)
	}
	second, err := ProcessSavable(h, rock)
	if err != nil {
		t.Fatalf("ProcessSavable again: %v", err)
	}
	if first != second {
		t.Fatalf("references differ:\nhave %v\nwant %v", second, first)
	}
	if want := (ExternalReference{TypeName: "Mesh", Path: "rock.spk"}); first != want {
		t.Fatalf("reference:\nhave %v\nwant %v", first, want)
	}
	if n := h.Pending(); n != 1 {
		t.Fatalf("Pending: have %d, want 1", n)
	}
	if ref, err := ProcessSavable[*mesh](h, nil); err != nil || !ref.IsNull() {
		t.Fatalf("ProcessSavable(nil): have %v, %v", ref, err)
	}
	if err := h.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if h.Pending() != 0 {
		t.Fatalf("Pending after Flush: have %d", h.Pending())
	}
	if !repo.Exists("rock.spk") {
		t.Fatalf("rock.spk not written")
	}
	if delta := core.MetricsSnapshot().ExternalWrites - before; delta != 1 {
		t.Fatalf("external writes: have %d, want 1", delta)
	}

	loaded, err := As[*mesh]((&loadState{repository: repo, registry: newRegistry(t), files: map[string]Savable{}}).load(first))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.name != "rock" || !reflect.DeepEqual(loaded.vertices, rock.vertices) {
		t.Fatalf("loaded mesh: have %+v", loaded)
	}
}

func TestFlushAffinity(t *testing.T) {
	h, repo := newHandler(t, HandlerOptions{Overwrite: true})
	if _, err := ProcessSavable(h, &texture{width: 64}); err != nil {
		t.Fatalf("ProcessSavable: %v", err)
	}

	done := make(chan error)
	go func() { done <- h.Flush() }()
	if err := <-done; err != nil {
		t.Fatalf("Flush from another goroutine: %v", err)
	}
	if h.Pending() != 1 {
		t.Fatalf("Pending after foreign Flush: have %d, want 1", h.Pending())
	}
	if err := h.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if h.Pending() != 0 || !repo.Exists("texture_0.spk") {
		t.Fatalf("owner Flush did not drain: pending %d", h.Pending())
	}
}

func TestNaming(t *testing.T) {
	anchorRepo := repository.NewDirectoryRepository(t.TempDir(), false)
	if err := anchorRepo.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer anchorRepo.Close()
	anchor, err := anchorRepo.GetResourceFile("scenes/level.spk")
	if err != nil {
		t.Fatalf("GetResourceFile: %v", err)
	}
	h, _ := newHandler(t, HandlerOptions{Repository: anchorRepo, Anchor: anchor, Overwrite: true})

	tests := []struct {
		value any
		want  string
	}{
		{&mesh{name: "rock"}, "scenes/rock.spk"},
		{&mesh{name: "rock"}, "scenes/rock_1.spk"},
		{&mesh{name: "rock"}, "scenes/rock_2.spk"},
		// A name carrying the extension shares the file name of the bare one.
		{&mesh{name: "rock.spk"}, "scenes/rock_3.spk"},
		{&mesh{name: "pebble.spk"}, "scenes/pebble.spk"},
		{&mesh{name: "pebble"}, "scenes/pebble_1.spk"},
		{&mesh{}, "scenes/mesh_0.spk"},
		{&texture{}, "scenes/texture_0.spk"},
		{&texture{}, "scenes/texture_1.spk"},
	}
	for i, tt := range tests {
		ref, err := h.Process(nil, tt.value)
		if err != nil {
			t.Fatalf("%d: Process: %v", i, err)
		}
		if ref.Path != tt.want {
			t.Fatalf("%d: path:\nhave %s\nwant %s", i, ref.Path, tt.want)
		}
	}

	SetNaming(h, func(tex *texture) (string, error) {
		if tex.width == 0 {
			return "", errors.New("texture without size")
		}
		return "textures/diffuse", nil
	})
	ref, err := ProcessSavable(h, &texture{width: 256})
	if err != nil || ref.Path != "scenes/textures/diffuse.spk" {
		t.Fatalf("delegate name: have %v, %v", ref, err)
	}
	if _, err := ProcessSavable(h, &texture{}); err == nil {
		t.Fatalf("failing naming delegate: no error")
	}
	if err := h.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if !anchorRepo.Exists("scenes/textures/diffuse.spk") {
		t.Fatalf("delegate named file missing")
	}
}

func TestWriters(t *testing.T) {
	h, repo := newHandler(t, HandlerOptions{Overwrite: true})

	// A declared type the value is not assignable to.
	_, err := h.Process(reflect.TypeOf((*texture)(nil)), &mesh{name: "rock"})
	var content *core.ContentError
	if !errors.As(err, &content) || !errors.Is(err, core.ErrTypeMismatch) {
		t.Fatalf("Process(texture, mesh):\nhave %v\nwant %v", err, core.ErrTypeMismatch)
	}
	if content.Expected != "*savable.texture" || content.Actual != "*savable.mesh" {
		t.Fatalf("mismatch: expected %q, actual %q", content.Expected, content.Actual)
	}

	// No writer at all.
	if _, err := h.Process(nil, &blob{}); !errors.Is(err, core.ErrNoWriter) {
		t.Fatalf("Process(blob) without writer:\nhave %v\nwant %v", err, core.ErrNoWriter)
	}

	// A writer registered for an interface that does not accept the value.
	h.RegisterWriterFor(savableType, &blobWriter{})
	if _, err := ProcessSavable[Savable](h, &mesh{name: "rock"}); !errors.Is(err, core.ErrTypeMismatch) {
		t.Fatalf("blob writer for a mesh:\nhave %v\nwant %v", err, core.ErrTypeMismatch)
	}
	delete(h.writers, savableType)
	h.interfaceWriters = nil

	h.RegisterWriter(&blobWriter{})
	ref, err := ProcessSavable(h, &blob{data: []byte("payload")})
	if err != nil {
		t.Fatalf("ProcessSavable(blob): %v", err)
	}
	if ref.Path != "blob_0.bin" || ref.TypeName != "*savable.blob" {
		t.Fatalf("blob reference: have %v", ref)
	}
	if err := h.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(repo.Root(), "blob_0.bin"))
	if err != nil || string(b) != "payload" {
		t.Fatalf("blob content: have %q, %v", b, err)
	}
}

func TestWriteFailurePropagates(t *testing.T) {
	h, repo := newHandler(t, HandlerOptions{Overwrite: true})
	boom := errors.New("disk full")
	h.RegisterWriter(&blobWriter{fail: boom})

	if _, err := ProcessSavable(h, &mesh{name: "ok"}); err != nil {
		t.Fatalf("ProcessSavable(mesh): %v", err)
	}
	if _, err := ProcessSavable(h, &blob{}); err != nil {
		t.Fatalf("ProcessSavable(blob): %v", err)
	}
	if err := h.Flush(); !errors.Is(err, boom) {
		t.Fatalf("Flush:\nhave %v\nwant %v", err, boom)
	}
	if !repo.Exists("ok.spk") {
		t.Fatalf("successful write was lost")
	}
	// The failed write leaves its partial file behind.
	if !repo.Exists("blob_0.bin") {
		t.Fatalf("partial file missing")
	}
}

func TestOverwrite(t *testing.T) {
	h, repo := newHandler(t, HandlerOptions{Overwrite: false})
	if err := os.WriteFile(filepath.Join(repo.Root(), "rock.spk"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	ref, err := ProcessSavable(h, &mesh{name: "rock"})
	if err != nil || ref.Path != "rock.spk" {
		t.Fatalf("ProcessSavable: have %v, %v", ref, err)
	}
	if h.Pending() != 0 {
		t.Fatalf("existing file queued for writing")
	}
	if err := h.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if b, _ := os.ReadFile(filepath.Join(repo.Root(), "rock.spk")); string(b) != "old" {
		t.Fatalf("existing file overwritten: %q", b)
	}
}

func TestComparerAndClear(t *testing.T) {
	h, _ := newHandler(t, HandlerOptions{
		Overwrite: true,
		Comparer: func(a, b any) bool {
			ma, okA := a.(*mesh)
			mb, okB := b.(*mesh)
			return okA && okB && ma.name == mb.name
		},
	})
	a, _ := ProcessSavable(h, &mesh{name: "rock"})
	b, _ := ProcessSavable(h, &mesh{name: "rock"})
	if a != b || h.Pending() != 1 {
		t.Fatalf("comparer: have %v and %v, %d pending", a, b, h.Pending())
	}
	if err := h.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	pass := h.Pass()
	h.Clear()
	if h.Pass() == pass || h.Pass().ID == pass.ID {
		t.Fatalf("Clear kept the pass")
	}
	c, err := ProcessSavable(h, &mesh{name: "rock"})
	if err != nil || c != a || h.Pending() != 1 {
		t.Fatalf("after Clear: have %v, %v, %d pending", c, err, h.Pending())
	}
	if err := h.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestFlushWaitsForClearedWrites(t *testing.T) {
	repo := repository.NewDirectoryRepository(t.TempDir(), false)
	h, _ := newHandler(t, HandlerOptions{Repository: repo, Overwrite: true})
	gate := make(chan struct{})
	h.RegisterWriter(&blobWriter{gate: gate})

	ref, err := ProcessSavable(h, &blob{data: []byte("payload")})
	if err != nil {
		t.Fatalf("ProcessSavable: %v", err)
	}
	h.Clear()
	if n := h.Pending(); n != 0 {
		t.Fatalf("Pending after Clear:\nhave %d\nwant 0", n)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(gate)
	}()
	if err := h.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if repo.IsOpen() {
		t.Fatalf("repository still open after Flush")
	}
	b, err := os.ReadFile(filepath.Join(repo.Root(), ref.Path))
	if err != nil || string(b) != "payload" {
		t.Fatalf("cleared write:\nhave %q, %v\nwant %q", b, err, "payload")
	}
}

func TestPassIDLogged(t *testing.T) {
	var buf bytes.Buffer
	level := core.GetLogLevel()
	core.SetLogOutput(&buf)
	core.SetLogLevel(core.DebugLevel)
	defer func() {
		core.SetLogLevel(level)
		core.SetLogOutput(io.Discard)
	}()

	h, _ := newHandler(t, HandlerOptions{Overwrite: true})
	first := h.Pass().ID
	if _, err := ProcessSavable(h, &mesh{name: "rock"}); err != nil {
		t.Fatalf("ProcessSavable: %v", err)
	}
	if err := h.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	h.Clear()
	second := h.Pass().ID

	out := buf.String()
	for _, want := range []string{
		fmt.Sprintf("pass %s: flushing 1 writes", first),
		fmt.Sprintf("pass %s: wrote external 'rock.spk'", first),
		fmt.Sprintf("pass %s replaced by %s", first, second),
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output:\nhave %s\nwant a line containing %q", out, want)
		}
	}
}

func TestConcurrentProcess(t *testing.T) {
	h, _ := newHandler(t, HandlerOptions{Overwrite: true})
	shared := &mesh{name: "rock", vertices: []float32{1, 2, 3}}

	const workers = 16
	refs := make([]ExternalReference, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			refs[i], errs[i] = ProcessSavable(h, shared)
		}(i)
	}
	wg.Wait()

	for i := range refs {
		if errs[i] != nil {
			t.Fatalf("%d: ProcessSavable: %v", i, errs[i])
		}
		if refs[i] != refs[0] {
			t.Fatalf("%d: reference:\nhave %v\nwant %v", i, refs[i], refs[0])
		}
	}
	if refs[0].Path != "rock.spk" {
		t.Fatalf("path:\nhave %s\nwant %s", refs[0].Path, "rock.spk")
	}
	if n := h.Pending(); n != 1 {
		t.Fatalf("Pending:\nhave %d\nwant 1", n)
	}
	if err := h.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestHandlerClosesRepositoryItOpened(t *testing.T) {
	repo := repository.NewDirectoryRepository(t.TempDir(), false)
	h, _ := newHandler(t, HandlerOptions{Repository: repo, Overwrite: true})
	if !repo.IsOpen() {
		t.Fatalf("handler did not open the repository")
	}
	if _, err := ProcessSavable(h, &texture{width: 1}); err != nil {
		t.Fatalf("ProcessSavable: %v", err)
	}
	if err := h.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if repo.IsOpen() {
		t.Fatalf("repository still open after Flush")
	}
	if _, err := NewExternalReferenceHandler(HandlerOptions{Repository: repo}); !errors.Is(err, core.ErrInvalidArgument) {
		t.Fatalf("handler without jobs:\nhave %v\nwant %v", err, core.ErrInvalidArgument)
	}
}

func TestSaveLoadGraph(t *testing.T) {
	repo := repository.NewDirectoryRepository(t.TempDir(), false)
	registry := newRegistry(t)

	rock := &mesh{name: "rock", vertices: []float32{0, 1, 2}}
	root := &node{name: "root"}
	left := &node{name: "left", parent: root, mesh: rock}
	right := &node{name: "right", parent: root, mesh: rock, children: []*node{left}}
	root.children = []*node{left, right}

	if err := Save(repo, "scenes/level.spk", &scene{root: root}, SaveOptions{Registry: registry, Overwrite: true}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if repo.IsOpen() {
		t.Fatalf("Save left the repository open")
	}

	loaded, err := Load[*scene](repo, "scenes/level.spk", registry)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	r := loaded.root
	if r == nil || r.name != "root" || len(r.children) != 2 {
		t.Fatalf("root: have %+v", r)
	}
	l, rt := r.children[0], r.children[1]
	if l.parent != r || rt.parent != r {
		t.Fatalf("cycle not rebuilt: parents %p %p, root %p", l.parent, rt.parent, r)
	}
	if len(rt.children) != 1 || rt.children[0] != l {
		t.Fatalf("shared child not rebuilt")
	}
	if l.mesh == nil || l.mesh != rt.mesh || r.mesh != nil {
		t.Fatalf("external mesh: have %p %p %p", l.mesh, rt.mesh, r.mesh)
	}
	if !reflect.DeepEqual(l.mesh.vertices, rock.vertices) {
		t.Fatalf("vertices: have %v, want %v", l.mesh.vertices, rock.vertices)
	}

	if _, err := Load[*node](repo, "scenes/level.spk", registry); !errors.Is(err, core.ErrTypeMismatch) {
		t.Fatalf("Load[*node] of a scene:\nhave %v\nwant %v", err, core.ErrTypeMismatch)
	}
}

func TestWriteUnregisteredType(t *testing.T) {
	repo := repository.NewDirectoryRepository(t.TempDir(), false)
	err := Save(repo, "x.spk", &texture{}, SaveOptions{Registry: NewRegistry()})
	if !errors.Is(err, core.ErrUnknownType) {
		t.Fatalf("Save of an unregistered type:\nhave %v\nwant %v", err, core.ErrUnknownType)
	}
}
