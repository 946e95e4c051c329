package testbed

import (
	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/spark/engine/content/primitive"
	"github.com/spaghettifunk/spark/engine/content/savable"
	"github.com/spaghettifunk/spark/engine/renderer/metadata"
)

// TargetSetup is the persisted description of a render target, or of a set
// of targets sharing one depth buffer when it lists more than one format.
type TargetSetup struct {
	Label      string
	Shape      metadata.ResourceShape
	Size       uint32
	ArrayCount int
	Formats    []gputypes.TextureFormat
}

func (t *TargetSetup) Name() string {
	return t.Label
}

func (t *TargetSetup) Write(out *savable.Output) error {
	if err := out.WriteString(t.Label); err != nil {
		return err
	}
	if err := primitive.WriteEnum(out.Writer, t.Shape); err != nil {
		return err
	}
	if err := out.WriteUint32(t.Size); err != nil {
		return err
	}
	if err := out.WriteInt32(int32(t.ArrayCount)); err != nil {
		return err
	}
	if err := out.WriteInt32(int32(len(t.Formats))); err != nil {
		return err
	}
	for _, f := range t.Formats {
		if err := primitive.WriteEnum(out.Writer, f); err != nil {
			return err
		}
	}
	return nil
}

func (t *TargetSetup) Read(in *savable.Input) error {
	var err error
	if t.Label, err = in.ReadString(); err != nil {
		return err
	}
	if t.Shape, err = primitive.ReadEnum[metadata.ResourceShape](in.Reader); err != nil {
		return err
	}
	if t.Size, err = in.ReadUint32(); err != nil {
		return err
	}
	count, err := in.ReadInt32()
	if err != nil {
		return err
	}
	t.ArrayCount = int(count)
	if count, err = in.ReadInt32(); err != nil {
		return err
	}
	t.Formats = make([]gputypes.TextureFormat, count)
	for i := range t.Formats {
		if t.Formats[i], err = primitive.ReadEnum[gputypes.TextureFormat](in.Reader); err != nil {
			return err
		}
	}
	return nil
}

// SceneSetup lists the render targets of a scene. Every target is stored in
// its own file next to the scene and referenced by path.
type SceneSetup struct {
	Title   string
	Targets []*TargetSetup
}

func (s *SceneSetup) Write(out *savable.Output) error {
	if err := out.WriteString(s.Title); err != nil {
		return err
	}
	if err := out.WriteInt32(int32(len(s.Targets))); err != nil {
		return err
	}
	for _, t := range s.Targets {
		if err := out.WriteExternalSavable(t); err != nil {
			return err
		}
	}
	return nil
}

func (s *SceneSetup) Read(in *savable.Input) error {
	var err error
	if s.Title, err = in.ReadString(); err != nil {
		return err
	}
	n, err := in.ReadInt32()
	if err != nil {
		return err
	}
	s.Targets = make([]*TargetSetup, n)
	for i := range s.Targets {
		if s.Targets[i], err = savable.As[*TargetSetup](in.ReadExternalSavable()); err != nil {
			return err
		}
	}
	return nil
}

// RegisterTypes adds the setup types to registry.
func RegisterTypes(registry *savable.Registry) error {
	if err := savable.Register[TargetSetup](registry, "TargetSetup"); err != nil {
		return err
	}
	return savable.Register[SceneSetup](registry, "SceneSetup")
}
