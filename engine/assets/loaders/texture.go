package loaders

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// TextureLoader decodes any format registered with the image package.
type TextureLoader struct{}

func (tl *TextureLoader) Load(path string) (*Resource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	b := img.Bounds()
	return &Resource{
		Name:     filepath.Base(path),
		FullPath: path,
		Kind:     KindImage,
		// decoded RGBA size, the upload path converts to that
		DataSize: uint64(b.Dx()) * uint64(b.Dy()) * 4,
		Data:     img,
	}, nil
}

func (tl *TextureLoader) Unload(res *Resource) error {
	res.Data = nil
	return nil
}
