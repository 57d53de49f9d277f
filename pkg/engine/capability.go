package engine

// The version of the Capability layout. Consumers reject any other version.
const CapabilityVersion = 1

// The raw block-processing entry point of an engine instance.
// ticks whole blocks of interleaved float samples are read from in and written to out.
type ProcessFunc func(ticks int, in, out []float32) error

// A handle to one engine instance's processing routine.
//
// Two independently built components that both reach the engine must drive the
// same instance. The component owning the engine exports a Capability and the
// component owning the audio callback binds it once during its own initialization.
// A Capability must not outlive the engine it came from: drop it when the engine
// is released.
type Capability struct {
	Version   int
	BlockSize int
	Process   ProcessFunc
}

// Something that can hand out its processing entry point.
type Exporter interface {
	ExportProcess() Capability
}

// Build a Capability around an engine's ProcessFloat.
func NewCapability(blockSize int, process ProcessFunc) Capability {
	return Capability{
		Version:   CapabilityVersion,
		BlockSize: blockSize,
		Process:   process,
	}
}
