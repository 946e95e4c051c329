package loaders

import (
	"github.com/spaghettifunk/spark/engine/content/repository"
	"github.com/spaghettifunk/spark/engine/content/savable"
	"github.com/spaghettifunk/spark/engine/core"
)

// SavableLoader reads files written by savable.Save, external references included.
type SavableLoader struct{}

func (sl *SavableLoader) Load(repo repository.Repository, name string, registry *savable.Registry) (interface{}, error) {
	v, err := savable.Load[savable.Savable](repo, name, registry)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, core.NewContentError("load "+name, core.ErrUnknown)
	}
	return v, nil
}

func (sl *SavableLoader) Unload(interface{}) error {
	return nil
}
