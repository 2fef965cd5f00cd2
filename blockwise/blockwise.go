// blockwise.go - Fixed-size block accumulation.

// Package blockwise buffers arbitrary-length input into fixed-size blocks
// for block-oriented processing. It is the shared buffering layer under the
// incremental hash and MAC accumulators.
package blockwise

// Sink consumes one full block. The block is only valid for the duration of
// the call and may alias the pending buffer or the caller's input.
type Sink func(block []byte)

// Accumulate appends input to the pending buffer, dispatching every full
// block to sink. len(pending) is the block size; *used tracks how many bytes
// of pending are occupied and is updated before return. Zero-length input is
// a no-op.
func Accumulate(pending []byte, used *int, input []byte, sink Sink) {
	if len(input) == 0 {
		return
	}
	blockSize := len(pending)

	// Top up a partial block first.
	if *used > 0 {
		n := copy(pending[*used:], input)
		*used += n
		input = input[n:]
		if *used < blockSize {
			return
		}
		sink(pending)
		*used = 0
	}

	// Whole blocks go straight from the input, no copy.
	for len(input) >= blockSize {
		sink(input[:blockSize])
		input = input[blockSize:]
	}

	*used = copy(pending, input)
}
