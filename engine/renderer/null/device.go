// Package null implements the native interfaces without a GPU. Every call is
// recorded so tools can dry-run resource setups and tests can inspect exactly
// which textures, views, resolves and clears were issued.
package null

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/google/uuid"

	"github.com/spaghettifunk/spark/engine/core"
	"github.com/spaghettifunk/spark/engine/renderer/native"
)

var ErrInjected = errors.New("null device: injected failure")

type Texture struct {
	device   *Device
	id       uuid.UUID
	desc     native.TextureDescription
	name     string
	released bool
}

func (t *Texture) Description() native.TextureDescription { return t.desc }

func (t *Texture) SetDebugName(name string) {
	t.device.mutex.Lock()
	defer t.device.mutex.Unlock()
	t.name = name
}

func (t *Texture) Name() string {
	t.device.mutex.Lock()
	defer t.device.mutex.Unlock()
	return t.name
}

func (t *Texture) Released() bool {
	t.device.mutex.Lock()
	defer t.device.mutex.Unlock()
	return t.released
}

func (t *Texture) Release() {
	if t.device.release(&t.released, "texture "+t.id.String()) {
		core.MetricsAdd(core.MetricNativeTextures, -1)
	}
}

func (t *Texture) String() string {
	return fmt.Sprintf("texture(%s %q)", t.id, t.name)
}

type View struct {
	device   *Device
	kind     native.ViewKind
	texture  *Texture
	desc     native.ViewDescription
	name     string
	released bool
}

func (v *View) Kind() native.ViewKind               { return v.kind }
func (v *View) Texture() native.Texture             { return v.texture }
func (v *View) Description() native.ViewDescription { return v.desc }

func (v *View) SetDebugName(name string) {
	v.device.mutex.Lock()
	defer v.device.mutex.Unlock()
	v.name = name
}

func (v *View) Name() string {
	v.device.mutex.Lock()
	defer v.device.mutex.Unlock()
	return v.name
}

func (v *View) Released() bool {
	v.device.mutex.Lock()
	defer v.device.mutex.Unlock()
	return v.released
}

func (v *View) Release() {
	if v.device.release(&v.released, v.kind.String()+" of "+v.texture.id.String()) {
		core.MetricsAdd(core.MetricNativeViews, -1)
	}
}

// Device is a recording native.Device.
type Device struct {
	mutex    sync.Mutex
	textures []*Texture
	views    []*View
	context  *Context
	// failAfter counts successful creations left before the injected failure; -1 disables it.
	failAfter     int
	doubleRelease int
}

func NewDevice() *Device {
	d := &Device{failAfter: -1}
	d.context = &Context{device: d}
	return d
}

// FailAfter makes the creation call following the next n successful ones fail.
func (d *Device) FailAfter(n int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.failAfter = n
}

func (d *Device) shouldFail() bool {
	switch {
	case d.failAfter < 0:
		return false
	case d.failAfter == 0:
		d.failAfter = -1
		return true
	default:
		d.failAfter--
		return false
	}
}

func (d *Device) CreateTexture(desc native.TextureDescription) (native.Texture, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.shouldFail() {
		return nil, ErrInjected
	}
	if desc.Format == gputypes.TextureFormatUndefined || desc.Size.Width == 0 {
		return nil, fmt.Errorf("null device: invalid texture description %+v", desc.TextureDescriptor)
	}
	t := &Texture{device: d, id: uuid.New(), desc: desc, name: desc.Label}
	d.textures = append(d.textures, t)
	core.MetricsAdd(core.MetricNativeTextures, 1)
	return t, nil
}

func (d *Device) CreateView(tex native.Texture, kind native.ViewKind, desc native.ViewDescription) (native.View, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.shouldFail() {
		return nil, ErrInjected
	}
	t, ok := tex.(*Texture)
	if !ok || t.device != d {
		return nil, fmt.Errorf("null device: %s on a foreign texture", kind)
	}
	if t.released {
		return nil, fmt.Errorf("null device: %s on released %s", kind, t)
	}
	slices := int(t.desc.Size.DepthOrArrayLayers)
	if desc.ArraySize < 1 || desc.FirstArraySlice < 0 || desc.FirstArraySlice+desc.ArraySize > slices {
		return nil, fmt.Errorf("null device: %s slices [%d, %d) outside of %d", kind, desc.FirstArraySlice, desc.FirstArraySlice+desc.ArraySize, slices)
	}
	if kind == native.ViewKindDepthStencil && !t.desc.Format.HasDepth() && !t.desc.Format.HasStencil() {
		return nil, fmt.Errorf("null device: %s on non depth format %s", kind, t.desc.Format)
	}
	v := &View{device: d, kind: kind, texture: t, desc: desc}
	d.views = append(d.views, v)
	core.MetricsAdd(core.MetricNativeViews, 1)
	return v, nil
}

func (d *Device) ImmediateContext() native.Context {
	return d.context
}

// Context returns the recording context, typed.
func (d *Device) Context() *Context {
	return d.context
}

func (d *Device) release(released *bool, what string) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if *released {
		d.doubleRelease++
		core.LogError("null device: %s released twice", what)
		return false
	}
	*released = true
	return true
}

// Textures returns every texture created so far, released or not.
func (d *Device) Textures() []*Texture {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]*Texture(nil), d.textures...)
}

// Views returns every view created so far, released or not.
func (d *Device) Views() []*View {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]*View(nil), d.views...)
}

// LiveTextures counts the textures not released yet.
func (d *Device) LiveTextures() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	n := 0
	for _, t := range d.textures {
		if !t.released {
			n++
		}
	}
	return n
}

// LiveViews counts the views not released yet.
func (d *Device) LiveViews() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	n := 0
	for _, v := range d.views {
		if !v.released {
			n++
		}
	}
	return n
}

// DoubleReleases counts Release calls on already released handles.
func (d *Device) DoubleReleases() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.doubleRelease
}
