// ABOUTME: Sample format dispatch
// ABOUTME: Maps each wire format tag to the generic runners for its Go type
package session

import (
	"context"
	"fmt"

	"github.com/Resonate-Protocol/audiosock/pkg/audio"
	"github.com/Resonate-Protocol/audiosock/pkg/protocol"
)

type runner interface {
	run(ctx context.Context) error
}

type runnerFactory struct {
	capture  func(c *Capture) runner
	playback func(p *Playback, cfg protocol.Config) runner
}

func factoryFor[T audio.Sample]() runnerFactory {
	return runnerFactory{
		capture:  func(c *Capture) runner { return newCaptureRunner[T](c) },
		playback: func(p *Playback, cfg protocol.Config) runner { return newPlaybackRunner[T](p, cfg) },
	}
}

var runners = map[audio.SampleFormat]runnerFactory{
	audio.FormatI8:  factoryFor[int8](),
	audio.FormatI16: factoryFor[int16](),
	audio.FormatI32: factoryFor[int32](),
	audio.FormatI64: factoryFor[int64](),
	audio.FormatU8:  factoryFor[uint8](),
	audio.FormatU16: factoryFor[uint16](),
	audio.FormatU32: factoryFor[uint32](),
	audio.FormatU64: factoryFor[uint64](),
	audio.FormatF32: factoryFor[float32](),
	audio.FormatF64: factoryFor[float64](),
}

func lookup(f audio.SampleFormat) (runnerFactory, error) {
	rf, ok := runners[f]
	if !ok {
		return runnerFactory{}, fmt.Errorf("%w: tag %d", audio.ErrUnknownFormat, uint8(f))
	}
	return rf, nil
}
