package loaders

import (
	"fmt"
	"io"

	"github.com/spaghettifunk/spark/engine/content/repository"
	"github.com/spaghettifunk/spark/engine/content/savable"
	"github.com/spaghettifunk/spark/engine/core"
)

// Binary is the raw content of a file, e.g. compiled shader bytecode.
type Binary struct {
	Name     string
	FullPath string
	Data     []byte
}

// Words returns the data as little endian 32 bit words. Trailing bytes that
// do not fill a word are dropped.
func (b *Binary) Words() []uint32 {
	return bytesToBytecode(b.Data)
}

type BinaryLoader struct{}

func (bl *BinaryLoader) Load(repo repository.Repository, name string, _ *savable.Registry) (interface{}, error) {
	file, err := repo.GetResourceFile(name)
	if err != nil {
		return nil, err
	}
	rc, err := file.OpenRead()
	if err != nil {
		return nil, core.NewContentError(fmt.Sprintf("load binary %s", name), err)
	}
	defer rc.Close()

	buf, err := io.ReadAll(rc)
	if err != nil {
		return nil, core.NewContentError(fmt.Sprintf("load binary %s", name), err)
	}
	return &Binary{
		Name:     file.Name(),
		FullPath: file.FullPath(),
		Data:     buf,
	}, nil
}

func (bl *BinaryLoader) Unload(interface{}) error {
	return nil
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}
