package hal

import (
	"errors"
	"time"
)

var (
	// ErrOutOfPoolMemory is returned when a descriptor pool cannot serve an
	// allocation; the descriptor layer grows on it.
	ErrOutOfPoolMemory = errors.New("descriptor pool out of memory")
	// ErrOutOfDate means the swapchain no longer matches the surface.
	ErrOutOfDate = errors.New("swapchain out of date")
	// ErrSuboptimal means the swapchain still works but should be rebuilt.
	ErrSuboptimal = errors.New("swapchain suboptimal")
	ErrTimeout    = errors.New("wait timed out")
	ErrDeviceLost = errors.New("device lost")
	// ErrOutOfDeviceMemory covers both host and device allocation failures.
	ErrOutOfDeviceMemory = errors.New("out of device memory")
	ErrUnsupported       = errors.New("unsupported by device")
)

// IsSwapchainError reports whether err asks the caller to rebuild the swapchain.
func IsSwapchainError(err error) bool {
	return errors.Is(err, ErrOutOfDate) || errors.Is(err, ErrSuboptimal)
}

type ResourceDevice interface {
	Limits() Limits

	CreateBuffer(desc BufferDesc) (BufferID, error)
	DestroyBuffer(id BufferID)
	// MapBuffer returns a byte view over the whole buffer. Mapping a mapped
	// buffer returns the existing view.
	MapBuffer(id BufferID) ([]byte, error)
	UnmapBuffer(id BufferID)

	// CreateImage creates the image, its memory and a default view.
	CreateImage(desc ImageDesc) (ImageID, error)
	DestroyImage(id ImageID)

	CreateSampler(desc SamplerDesc) (SamplerID, error)
	DestroySampler(id SamplerID)

	CreateShaderModule(label string, stage ShaderStage, code []byte) (ShaderID, error)
	DestroyShaderModule(id ShaderID)
}

type DescriptorDevice interface {
	CreateDescriptorSetLayout(label string, bindings []LayoutBinding) (LayoutID, error)
	DestroyDescriptorSetLayout(id LayoutID)
	CreateDescriptorPool(desc PoolDesc) (PoolID, error)
	DestroyDescriptorPool(id PoolID)
	// AllocateDescriptorSet returns ErrOutOfPoolMemory when the pool is exhausted.
	AllocateDescriptorSet(pool PoolID, layout LayoutID) (SetID, error)
	UpdateDescriptorSets(writes []DescriptorWrite)
}

type PipelineDevice interface {
	CreateRenderPass(desc RenderPassDesc) (RenderPassID, error)
	DestroyRenderPass(id RenderPassID)
	CreateFramebuffer(desc FramebufferDesc) (FramebufferID, error)
	DestroyFramebuffer(id FramebufferID)
	CreatePipeline(desc PipelineDesc) (PipelineID, error)
	DestroyPipeline(id PipelineID)
}

type CommandDevice interface {
	CreateCommandPool(label string) (CommandPoolID, error)
	DestroyCommandPool(id CommandPoolID)
	AllocateCommandBuffers(pool CommandPoolID, count int) ([]CommandBufferID, error)
	FreeCommandBuffers(pool CommandPoolID, cmds []CommandBufferID)
	BeginCommandBuffer(cmd CommandBufferID, oneShot bool) error
	EndCommandBuffer(cmd CommandBufferID) error

	Submit(desc SubmitDesc) error
	// SubmitAndWait submits a recorded one-shot buffer and blocks until the
	// queue is idle.
	SubmitAndWait(cmd CommandBufferID) error

	CreateFence(signaled bool) (FenceID, error)
	DestroyFence(id FenceID)
	// WaitFence returns ErrTimeout or ErrDeviceLost on failure.
	WaitFence(id FenceID, timeout time.Duration) error
	ResetFence(id FenceID) error
	CreateSemaphore() (SemaphoreID, error)
	DestroySemaphore(id SemaphoreID)

	WaitIdle() error
}

type Recorder interface {
	CmdCopyBuffer(cmd CommandBufferID, src, dst BufferID, srcOffset, dstOffset, size uint64)
	CmdCopyBufferToImage(cmd CommandBufferID, src BufferID, dst ImageID, width, height uint32)
	CmdImageBarrier(cmd CommandBufferID, barrier ImageBarrier)
	CmdBeginRenderPass(cmd CommandBufferID, begin RenderPassBegin)
	CmdEndRenderPass(cmd CommandBufferID)
	CmdSetViewport(cmd CommandBufferID, width, height float32)
	CmdSetScissor(cmd CommandBufferID, width, height uint32)
	CmdBindPipeline(cmd CommandBufferID, pipeline PipelineID)
	CmdBindDescriptorSets(cmd CommandBufferID, pipeline PipelineID, first uint32, sets []SetID)
	CmdBindVertexBuffer(cmd CommandBufferID, buffer BufferID, offset uint64)
	CmdBindIndexBuffer(cmd CommandBufferID, buffer BufferID, offset uint64)
	CmdPushConstants(cmd CommandBufferID, pipeline PipelineID, data []byte)
	CmdDraw(cmd CommandBufferID, vertexCount, instanceCount uint32)
	CmdDrawIndexed(cmd CommandBufferID, indexCount, instanceCount, firstIndex uint32, vertexOffset int32)
}

type Presenter interface {
	SurfaceInfo() (SurfaceInfo, error)
	CreateSwapchain(desc SwapchainDesc) (Swapchain, error)
	DestroySwapchain(id SwapchainID)
	// AcquireNextImage may return ErrSuboptimal together with a valid index.
	AcquireNextImage(sc SwapchainID, timeout time.Duration, signal SemaphoreID) (uint32, error)
	Present(sc SwapchainID, imageIndex uint32, wait SemaphoreID) error
}

// Device is everything the renderer needs from a GPU backend.
type Device interface {
	ResourceDevice
	DescriptorDevice
	PipelineDevice
	CommandDevice
	Recorder
	Presenter

	Destroy()
}
