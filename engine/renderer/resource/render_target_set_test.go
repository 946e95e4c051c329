package resource

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/spark/engine/renderer/metadata"
	"github.com/spaghettifunk/spark/engine/renderer/null"
)

func TestRenderTargetSet(t *testing.T) {
	d := null.NewDevice()
	formats := []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatR8Unorm}
	set, err := NewRenderTargetSet(d, metadata.Shape2DArray, metadata.TextureDescription{Width: 64, Height: 64, ArrayCount: 2},
		formats, RenderTargetOptions{Name: "gbuffer", CreateDepthBuffer: true, OptimizeDepthForSingleSurface: true})
	if err != nil {
		t.Fatalf("NewRenderTargetSet: %v", err)
	}
	if set.Len() != 3 || set.DepthBuffer() == nil || set.DepthBuffer().RefCount() != 3 {
		t.Fatalf("set of %d targets, depth refs %d", set.Len(), set.DepthBuffer().RefCount())
	}
	for i, rt := range set.Targets() {
		if rt.DepthBuffer() != set.DepthBuffer() || rt.Format() != formats[i] {
			t.Fatalf("target %d: format %v, shares depth %t", i, rt.Format(), rt.DepthBuffer() == set.DepthBuffer())
		}
	}
	if name := set.Target(1).Name(); name != "gbuffer.1" {
		t.Fatalf("Name:\nhave %q\nwant %q", name, "gbuffer.1")
	}

	if err := set.NotifyOnFirstBind(); err != nil || set.DepthBuffer().IsOptimizedForSingleSurface() {
		t.Fatalf("NotifyOnFirstBind did not expand the shared buffer (%v)", err)
	}
	if err := set.Clear(metadata.ClearAll, gputypes.Color{A: 1}, 1, 0); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	// One clear per color target plus one for the shared depth buffer.
	if n := len(d.Context().Clears()); n != 4 {
		t.Fatalf("clears:\nhave %d\nwant 4", n)
	}
	if views := set.RenderTargetViews(); len(views) != 3 || views[2] != set.Target(2).RenderTargetView() {
		t.Fatalf("RenderTargetViews: unexpected %v", views)
	}

	depth := set.DepthBuffer()
	set.Dispose()
	if !depth.IsDisposed() {
		t.Fatalf("shared depth buffer survived the set")
	}
	if n := d.LiveTextures() + d.LiveViews(); n != 0 {
		t.Fatalf("%d native objects leaked", n)
	}
}

func TestRenderTargetSetFailureReleasesEverything(t *testing.T) {
	d := null.NewDevice()
	formats := []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatUndefined}
	_, err := NewRenderTargetSet(d, metadata.Shape2D, metadata.TextureDescription{Width: 8, Height: 8}, formats,
		RenderTargetOptions{CreateDepthBuffer: true})
	if err == nil {
		t.Fatalf("NewRenderTargetSet with an undefined format: unexpected success")
	}
	if n := d.LiveTextures() + d.LiveViews(); n != 0 {
		t.Fatalf("%d native objects leaked", n)
	}
}
