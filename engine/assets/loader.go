package assets

import (
	"github.com/spaghettifunk/spark/engine/content/repository"
	"github.com/spaghettifunk/spark/engine/content/savable"
)

// Loader reads one kind of content file. The returned value is cached by the
// ContentManager until it is unloaded.
type Loader interface {
	Load(repo repository.Repository, name string, registry *savable.Registry) (interface{}, error)
	Unload(value interface{}) error
}
