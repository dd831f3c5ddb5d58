// ABOUTME: Streaming linear resampler for interleaved unit-range samples
// ABOUTME: Carries interpolation state across chunks so output is seamless
package resample

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64

	// position of the next output frame, in input frames from prev
	position float64
	prev     []float64
	primed   bool
}

// New creates a resampler for interleaved audio with the given channel count
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		prev:       make([]float64, channels),
	}
}

// Passthrough reports whether input and output rates match
func (r *Resampler) Passthrough() bool {
	return r.inputRate == r.outputRate
}

// Resample appends input converted to the output rate onto dst.
// The last input frame is held back to interpolate against the next chunk.
func (r *Resampler) Resample(dst, input []float64) []float64 {
	if r.Passthrough() {
		return append(dst, input...)
	}

	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return dst
	}

	// frame i of the virtual sequence prev, input...
	offset := 0
	if r.primed {
		offset = 1
	}
	total := inputFrames + offset
	at := func(frame, ch int) float64 {
		if frame < offset {
			return r.prev[ch]
		}
		return input[(frame-offset)*r.channels+ch]
	}

	for {
		idx := int(r.position)
		if idx+1 >= total {
			break
		}
		frac := r.position - float64(idx)
		for ch := 0; ch < r.channels; ch++ {
			a := at(idx, ch)
			b := at(idx+1, ch)
			dst = append(dst, a+(b-a)*frac)
		}
		r.position += r.ratio
	}

	r.position -= float64(total - 1)
	copy(r.prev, input[(inputFrames-1)*r.channels:inputFrames*r.channels])
	r.primed = true
	return dst
}

// Reset forgets interpolation state
func (r *Resampler) Reset() {
	r.position = 0
	r.primed = false
	for i := range r.prev {
		r.prev[i] = 0
	}
}

// OutputSamplesNeeded estimates how many output samples input samples produce
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames) / r.ratio)
	return outputFrames * r.channels
}

// InputSamplesNeeded estimates how many input samples yield outputSamples
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	outputFrames := outputSamples / r.channels
	inputFrames := int(float64(outputFrames)*r.ratio + 0.5)
	return inputFrames * r.channels
}
