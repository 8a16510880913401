// Package hal is the device vocabulary shared by the renderer and its backends.
// Every handle is an opaque id owned by the device that created it; the zero
// value of any handle is the null handle.
package hal

import "time"

type (
	BufferID        uint64
	ImageID         uint64
	SamplerID       uint64
	ShaderID        uint64
	LayoutID        uint64
	PoolID          uint64
	SetID           uint64
	RenderPassID    uint64
	FramebufferID   uint64
	PipelineID      uint64
	CommandPoolID   uint64
	CommandBufferID uint64
	FenceID         uint64
	SemaphoreID     uint64
	SwapchainID     uint64
)

// WaitForever disables the timeout of fence and acquire waits.
const WaitForever = time.Duration(1<<63 - 1)

type MemoryKind uint8

const (
	MemoryDeviceLocal MemoryKind = iota
	// Host-visible memory is always requested host-coherent as well.
	MemoryHostVisible
)

func (m MemoryKind) String() string {
	if m == MemoryHostVisible {
		return "host-visible"
	}
	return "device-local"
}

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndex
	BufferUsageVertex
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc ImageUsage = 1 << iota
	ImageUsageTransferDst
	ImageUsageSampled
	ImageUsageStorage
	ImageUsageColorAttachment
	ImageUsageDepthAttachment
)

type Format uint32

const (
	FormatUndefined Format = iota
	FormatRGBA8Unorm
	FormatRGBA8Srgb
	FormatBGRA8Unorm
	FormatBGRA8Srgb
	FormatRGBA16Float
	FormatRGBA32Float
	FormatD32Float
	FormatD24UnormS8
	// vertex attribute formats
	FormatFloat32
	FormatFloat32x2
	FormatFloat32x3
	FormatFloat32x4
)

// IsDepth reports whether the format carries depth and needs the depth aspect.
func (f Format) IsDepth() bool {
	return f == FormatD32Float || f == FormatD24UnormS8
}

// TexelSize is the byte size of one texel, 0 for non-color formats.
func (f Format) TexelSize() int {
	switch f {
	case FormatRGBA8Unorm, FormatRGBA8Srgb, FormatBGRA8Unorm, FormatBGRA8Srgb:
		return 4
	case FormatRGBA16Float:
		return 8
	case FormatRGBA32Float:
		return 16
	}
	return 0
}

type ImageLayout uint8

const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutColorAttachment
	LayoutDepthAttachment
	LayoutPresent
)

func (l ImageLayout) String() string {
	switch l {
	case LayoutGeneral:
		return "general"
	case LayoutShaderReadOnly:
		return "shader-read-only"
	case LayoutTransferSrc:
		return "transfer-src"
	case LayoutTransferDst:
		return "transfer-dst"
	case LayoutColorAttachment:
		return "color-attachment"
	case LayoutDepthAttachment:
		return "depth-attachment"
	case LayoutPresent:
		return "present"
	}
	return "undefined"
}

type Access uint32

const (
	AccessNone         Access = 0
	AccessTransferRead Access = 1 << iota
	AccessTransferWrite
	AccessShaderRead
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthAttachmentRead
	AccessDepthAttachmentWrite
	AccessHostWrite
	AccessMemoryRead
)

type PipelineStage uint32

const (
	StageTopOfPipe PipelineStage = 1 << iota
	StageTransfer
	StageVertexShader
	StageFragmentShader
	StageComputeShader
	StageEarlyFragmentTests
	StageColorAttachmentOutput
	StageBottomOfPipe
	StageAllCommands
)

type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
	ShaderStageGeometry
	ShaderStageCompute
	ShaderStageTessControl
	ShaderStageTessEvaluation

	ShaderStageAllGraphics = ShaderStageVertex | ShaderStageFragment | ShaderStageGeometry |
		ShaderStageTessControl | ShaderStageTessEvaluation
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vert"
	case ShaderStageFragment:
		return "frag"
	case ShaderStageGeometry:
		return "geom"
	case ShaderStageCompute:
		return "comp"
	case ShaderStageTessControl:
		return "tesc"
	case ShaderStageTessEvaluation:
		return "tese"
	}
	return "mixed"
}

type DescriptorKind uint8

const (
	DescriptorNone DescriptorKind = iota
	DescriptorCombinedImageSampler
	DescriptorStorageImage
	DescriptorUniformBuffer
	DescriptorStorageBuffer
	DescriptorAccelerationStructure
)

func (k DescriptorKind) String() string {
	switch k {
	case DescriptorCombinedImageSampler:
		return "combined-image-sampler"
	case DescriptorStorageImage:
		return "storage-image"
	case DescriptorUniformBuffer:
		return "uniform-buffer"
	case DescriptorStorageBuffer:
		return "storage-buffer"
	case DescriptorAccelerationStructure:
		return "acceleration-structure"
	}
	return "none"
}

// IsImage reports whether the kind is written with image info rather than
// buffer info.
func (k DescriptorKind) IsImage() bool {
	return k == DescriptorCombinedImageSampler || k == DescriptorStorageImage
}

type Filter uint8

const (
	FilterLinear Filter = iota
	FilterNearest
)

type AddressMode uint8

const (
	AddressRepeat AddressMode = iota
	AddressMirroredRepeat
	AddressClampToEdge
	AddressClampToBorder
)

type Topology uint8

const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
	TopologyLineList
	TopologyPointList
)

type CullMode uint8

const (
	CullNone CullMode = iota
	CullFront
	CullBack
	CullFrontAndBack
)

type LoadOp uint8

const (
	LoadOpClear LoadOp = iota
	LoadOpLoad
	LoadOpDontCare
)

type StoreOp uint8

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

type PresentMode uint8

const (
	PresentModeFifo PresentMode = iota
	PresentModeFifoRelaxed
	PresentModeMailbox
	PresentModeImmediate
)

func (p PresentMode) String() string {
	switch p {
	case PresentModeFifoRelaxed:
		return "fifo-relaxed"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeImmediate:
		return "immediate"
	}
	return "fifo"
}

type Limits struct {
	MaxPerStageSamplers             uint32
	MaxImageDimension2D             uint32
	MaxPushConstantsSize            uint32
	MinUniformBufferOffsetAlignment uint64
	MinStorageBufferOffsetAlignment uint64
	MaxSamplerAnisotropy            float32
	AccelerationStructures          bool
}

type BufferDesc struct {
	Label  string
	Size   uint64
	Usage  BufferUsage
	Memory MemoryKind
}

type ImageDesc struct {
	Label  string
	Width  uint32
	Height uint32
	Format Format
	Usage  ImageUsage
}

type SamplerDesc struct {
	Label       string
	MagFilter   Filter
	MinFilter   Filter
	AddressMode AddressMode
	Anisotropy  bool
}

type LayoutBinding struct {
	Slot   uint32
	Stages ShaderStage
	Kind   DescriptorKind
	Count  uint32
}

type PoolSize struct {
	Kind  DescriptorKind
	Count uint32
}

type PoolDesc struct {
	Label   string
	MaxSets uint32
	Sizes   []PoolSize
}

// DescriptorWrite updates one array element of one binding.
type DescriptorWrite struct {
	Set          SetID
	Slot         uint32
	ArrayElement uint32
	Kind         DescriptorKind
	Buffer       BufferID
	Offset       uint64
	Range        uint64
	Image        ImageID
	Sampler      SamplerID
	Layout       ImageLayout
}

type ImageBarrier struct {
	Image     ImageID
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcAccess Access
	DstAccess Access
	SrcStage  PipelineStage
	DstStage  PipelineStage
}

type AttachmentDesc struct {
	Format  Format
	Load    LoadOp
	Store   StoreOp
	Initial ImageLayout
	Final   ImageLayout
}

type RenderPassDesc struct {
	Label  string
	Colors []AttachmentDesc
	Depth  *AttachmentDesc
}

type FramebufferDesc struct {
	Label       string
	Pass        RenderPassID
	Attachments []ImageID
	Width       uint32
	Height      uint32
}

type VertexAttribute struct {
	Location uint32
	Format   Format
	Offset   uint32
}

// SpecConstant sets the 32-bit specialization constant with id ConstantID.
type SpecConstant struct {
	ID    uint32
	Value uint32
}

type ShaderStageRef struct {
	Stage     ShaderStage
	Module    ShaderID
	Entry     string
	Constants []SpecConstant
}

type PipelineDesc struct {
	Label            string
	Pass             RenderPassID
	Subpass          uint32
	Stages           []ShaderStageRef
	VertexStride     uint32
	Attributes       []VertexAttribute
	Topology         Topology
	Cull             CullMode
	Blend            bool
	DepthTest        bool
	DepthWrite       bool
	SetLayouts       []LayoutID
	PushConstantSize uint32
	ColorAttachments int
}

type RenderPassBegin struct {
	Pass        RenderPassID
	Framebuffer FramebufferID
	Width       uint32
	Height      uint32
	ClearColor  [4]float32
	ClearDepth  float32
	ColorCount  int
	HasDepth    bool
}

type SubmitDesc struct {
	Cmd       CommandBufferID
	Wait      SemaphoreID
	WaitStage PipelineStage
	Signal    SemaphoreID
	Fence     FenceID
}

type Extent struct {
	Width  uint32
	Height uint32
}

// UndefinedExtent in SurfaceInfo.CurrentExtent means the surface size follows
// the swapchain.
const UndefinedExtent = ^uint32(0)

type SurfaceInfo struct {
	MinImageCount uint32
	// 0 means no upper bound.
	MaxImageCount uint32
	CurrentExtent Extent
	MinExtent     Extent
	MaxExtent     Extent
	Format        Format
	PresentModes  []PresentMode
}

type SwapchainDesc struct {
	Label       string
	Width       uint32
	Height      uint32
	MinImages   uint32
	Format      Format
	PresentMode PresentMode
	// Old is handed to the device as a hint and retired by the caller afterwards.
	Old SwapchainID
}

type Swapchain struct {
	ID          SwapchainID
	Images      []ImageID
	Format      Format
	Extent      Extent
	PresentMode PresentMode
}
