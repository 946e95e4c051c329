package engine

import (
	"github.com/spaghettifunk/spark/engine/assets"
	"github.com/spaghettifunk/spark/engine/content/repository"
	"github.com/spaghettifunk/spark/engine/content/savable"
	"github.com/spaghettifunk/spark/engine/core"
	"github.com/spaghettifunk/spark/engine/renderer/metadata"
	"github.com/spaghettifunk/spark/engine/renderer/native"
	"github.com/spaghettifunk/spark/engine/renderer/resource"
	"github.com/spaghettifunk/spark/engine/systems"
)

// Systems groups the long lived services a game talks to.
type Systems struct {
	Config     *core.Config
	Device     native.Device
	Jobs       *systems.JobSystem
	Repository *repository.DirectoryRepository
	Registry   *savable.Registry
	Content    *assets.ContentManager
}

func NewSystems(config *core.Config, device native.Device) (*Systems, error) {
	js, err := systems.NewJobSystem(config.Jobs.Workers, config.Jobs.QueueSize)
	if err != nil {
		return nil, err
	}

	repo := repository.NewDirectoryRepository(config.Content.Root, config.Content.Watch)
	registry := savable.NewRegistry()
	cm, err := assets.NewContentManager(assets.ContentManagerConfig{
		Repository: repo,
		Registry:   registry,
		Jobs:       js,
		Overwrite:  config.Content.Overwrite,
		Extension:  config.Content.Extension,
	})
	if err != nil {
		_ = js.Shutdown()
		return nil, err
	}

	return &Systems{
		Config:     config,
		Device:     device,
		Jobs:       js,
		Repository: repo,
		Registry:   registry,
		Content:    cm,
	}, nil
}

func (sm *Systems) Initialize() error {
	return sm.Content.Initialize()
}

func (sm *Systems) Shutdown() error {
	if err := sm.Content.Shutdown(); err != nil {
		return err
	}
	if err := sm.Jobs.Shutdown(); err != nil {
		return err
	}
	return nil
}

// Multisample is the configured multisample description of new render targets.
func (sm *Systems) Multisample() metadata.MultisampleDescription {
	return metadata.MultisampleDescription{
		Count:                 sm.Config.Renderer.SampleCount,
		Quality:               sm.Config.Renderer.SampleQuality,
		ResolveShaderResource: sm.Config.Renderer.ResolveToShaderResource,
	}
}

// RenderTargetOptions returns options creating a companion depth buffer as configured.
func (sm *Systems) RenderTargetOptions(name string) resource.RenderTargetOptions {
	return resource.RenderTargetOptions{
		Name:                          name,
		CreateDepthBuffer:             true,
		DepthFormat:                   sm.Config.DepthFormat(),
		OptimizeDepthForSingleSurface: sm.Config.Renderer.OptimizeDepthForSingleSurface,
	}
}
