package savable

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/spaghettifunk/spark/engine/content/primitive"
	"github.com/spaghettifunk/spark/engine/content/repository"
	"github.com/spaghettifunk/spark/engine/core"
	"github.com/spaghettifunk/spark/engine/renderer/metadata"
	"github.com/spaghettifunk/spark/engine/systems"
)

type SaveOptions struct {
	Registry *Registry
	// Jobs runs the external writes. A temporary job system is used when nil.
	Jobs      *systems.JobSystem
	Overwrite bool
	Extension string
	Comparer  func(a, b any) bool
	// Configure registers naming delegates and writers on the handler before
	// anything is written.
	Configure func(h *ExternalReferenceHandler)
}

// Save writes value to the file name of repo, and every external object it
// references to files next to it. It returns once all files are written.
func Save(repo repository.Repository, name string, value Savable, options SaveOptions) (err error) {
	if repo == nil || options.Registry == nil {
		return fmt.Errorf("%w: repository and registry are required", core.ErrInvalidArgument)
	}
	if !repo.IsOpen() {
		if err := repo.Open(); err != nil {
			return err
		}
		defer func() {
			if repo.IsOpen() {
				err = errors.Join(err, repo.Close())
			}
		}()
	}
	file, err := repo.GetResourceFile(name)
	if err != nil {
		return err
	}

	jobs := options.Jobs
	if jobs == nil {
		if jobs, err = systems.NewJobSystem(runtime.NumCPU(), 0); err != nil {
			return err
		}
		defer jobs.Shutdown()
	}
	handler, err := NewExternalReferenceHandler(HandlerOptions{
		Repository: repo,
		Jobs:       jobs,
		Registry:   options.Registry,
		Anchor:     file,
		Overwrite:  options.Overwrite,
		Extension:  options.Extension,
		Comparer:   options.Comparer,
	})
	if err != nil {
		return err
	}
	if options.Configure != nil {
		options.Configure(handler)
	}

	writeErr := writeFile(file, options.Registry, handler, value)
	// Flushed even when the primary write failed so no write is left running.
	flushErr := handler.Flush()
	if writeErr != nil {
		return writeErr
	}
	return flushErr
}

func writeFile(file repository.ResourceFile, registry *Registry, handler *ExternalReferenceHandler, value Savable) error {
	w, err := file.Create()
	if err != nil {
		return core.NewContentError(fmt.Sprintf("save %s", file.Name()), err)
	}
	pw := primitive.NewWriter(w)
	out := NewOutput(pw, registry, handler)
	if err := pw.WriteHeader(metadata.NewResourceHeader(metadata.ResourceTypeSavable)); err != nil {
		w.Close()
		return core.NewContentError(fmt.Sprintf("save %s", file.Name()), err)
	}
	if err := out.WriteSavable(value); err != nil {
		w.Close()
		return core.NewContentError(fmt.Sprintf("save %s", file.Name()), err)
	}
	if err := pw.Flush(); err != nil {
		w.Close()
		return core.NewContentError(fmt.Sprintf("save %s", file.Name()), err)
	}
	return w.Close()
}

// Load reads a file written by Save, following its external references.
func Load[T Savable](repo repository.Repository, name string, registry *Registry) (value T, err error) {
	if repo == nil || registry == nil {
		return value, fmt.Errorf("%w: repository and registry are required", core.ErrInvalidArgument)
	}
	if !repo.IsOpen() {
		if err := repo.Open(); err != nil {
			return value, err
		}
		defer func() {
			err = errors.Join(err, repo.Close())
		}()
	}
	file, err := repo.GetResourceFile(name)
	if err != nil {
		return value, err
	}
	rc, err := file.OpenRead()
	if err != nil {
		return value, core.NewContentError(fmt.Sprintf("load %s", name), err)
	}
	defer rc.Close()

	in := newInput(primitive.NewReader(rc), &loadState{repository: repo, registry: registry, files: make(map[string]Savable)}, file)
	header, err := in.ReadHeader()
	if err != nil {
		return value, core.NewContentError(fmt.Sprintf("load %s", name), err)
	}
	if header.ResourceType != metadata.ResourceTypeSavable {
		return value, core.NewMismatchError(fmt.Sprintf("load %s", name), core.ErrTypeMismatch, metadata.ResourceTypeSavable.String(), header.ResourceType.String())
	}
	return As[T](in.ReadSavable())
}
