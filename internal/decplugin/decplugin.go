// Package decplugin defines the narrow capability interfaces the
// decoder owner dispatches through: decoder plugins, packetizers, and
// the compressed-block type they exchange, per §6's external interface
// contract. Concrete decoders (codec implementations) are out of scope
// (§1) and are treated polymorphically here.
package decplugin

// Category identifies what kind of output unit a decoder plugin
// produces, driving the decoder owner's routing in §4.3.
type Category int

const (
	CategoryVideo Category = iota
	CategoryAudio
	CategorySubpicture
)

// BlockFlags are the sentinel flags carried on compressed blocks, §6.
type BlockFlags uint32

const (
	FlagCoreFlush BlockFlags = 1 << iota
	FlagDiscontinuity
	FlagCorrupted
	FlagPreroll
)

// Has reports whether f contains all bits of mask.
func (f BlockFlags) Has(mask BlockFlags) bool { return f&mask == mask }

// Block is a compressed input unit or a sentinel (flush) block. An
// end-of-stream drain is signalled by passing a nil *Block instead.
type Block struct {
	Data  []byte
	PTS   int64 // presentation timestamp in the stream's own domain
	DTS   int64
	Flags BlockFlags

	// Drain marks a block as an end-of-stream drain request. The
	// decoder owner does not read this field; it drains the decoder by
	// passing it a nil block.
	Drain bool
}

// IsFlushSentinel reports whether this block is the special
// CORE_FLUSH|DISCONTINUITY|CORRUPTED sentinel the Flush protocol
// submits (§4.3 "Flush").
func (b *Block) IsFlushSentinel() bool {
	return b != nil && b.Flags.Has(FlagCoreFlush|FlagDiscontinuity|FlagCorrupted)
}

// VideoOutputUnit, AudioOutputUnit and SubpictureOutputUnit are the
// polymorphic decode results routed by category. They carry just
// enough metadata for the decoder owner to apply clock conversion and
// preroll/rate checks before handing off to a sink; the sink-specific
// payload (pixel planes, PCM samples, overlay content) lives behind
// the Picture/Subpicture handles allocated from the owning heaps, or
// as a raw byte payload for audio.
type VideoOutputUnit struct {
	PTS   int64
	Alloc func() (slot any, err error) // producer's pool allocator, e.g. picture.Heap.Create
}

type AudioOutputUnit struct {
	PTS     int64
	Samples []byte
	Rate    int // sample rate the block was decoded at
}

type SubpictureOutputUnit struct {
	Start, Stop int64
	Payload     []byte
	Channel     int
}

// FormatDescriptor is the negotiated input/output format pair a
// decoder or packetizer plugin exposes, mirroring §6's "fmt_in,
// fmt_out: category, codec fourcc, audio/video parameters".
type FormatDescriptor struct {
	Category Category
	Fourcc   string
	// Video parameters.
	Width, Height int
	// Audio parameters.
	SampleRate, Channels int
}

// Equal reports whether two format descriptors describe the same
// negotiated format, used by the owner to detect the packetizer
// output-format change that triggers a decoder reload (§4.3).
func (f FormatDescriptor) Equal(o FormatDescriptor) bool {
	return f == o
}

// Decoder is the polymorphic decoder-plugin contract of §6. A decoder
// implements only the Decode* method matching its Category; the others
// may simply return nil without emitting anything — callers must check
// Category before invoking a Decode* method.
type Decoder interface {
	Category() Category
	FormatIn() FormatDescriptor
	FormatOut() FormatDescriptor

	// DecodeVideo consumes one block (nil means drain) and yields zero
	// or more picture handles via the emit callback.
	DecodeVideo(block *Block, emit func(pts int64, alloc func() (any, error))) error
	// DecodeAudio consumes one block (nil means drain) and yields zero
	// or more audio units.
	DecodeAudio(block *Block, emit func(AudioOutputUnit)) error
	// DecodeSub consumes one block (nil means drain) and yields zero
	// or more subpicture units.
	DecodeSub(block *Block, emit func(SubpictureOutputUnit)) error

	// GetCC returns a CC sub-stream block for each of up to four
	// channels that have output pending, or nil for a channel with
	// nothing pending. present reports which of the four channels are
	// enabled on this decoder instance.
	GetCC(present [4]bool) [4]*Block

	// Close releases decoder-internal state (flush-equivalent at
	// teardown).
	Close() error
}

// Packetizer re-frames raw demuxed blocks into decoder-ready blocks
// before they reach a Decoder, per §4.3's "Packetizer pre-stage".
type Packetizer interface {
	Packetize(block *Block) (*Block, error)
	FormatOut() FormatDescriptor
	Close() error
}
