// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for payload encoders
package encode

import "github.com/Resonate-Protocol/audiosock/pkg/audio"

// Encoder turns samples into a Data payload
type Encoder[T audio.Sample] interface {
	// Encode appends the encoding of samples to dst
	Encode(dst []byte, samples []T) []byte

	// Close releases encoder resources
	Close() error
}
