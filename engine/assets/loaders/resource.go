package loaders

// Kind tells the asset manager which loader a file goes through.
type Kind uint8

const (
	KindNone Kind = iota
	KindShader
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindShader:
		return "shader"
	case KindImage:
		return "image"
	}
	return "none"
}

// Resource is a decoded file. Data holds a []byte for shaders and an
// image.Image for images.
type Resource struct {
	Name     string
	FullPath string
	Kind     Kind
	DataSize uint64
	Data     interface{}
}
