// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for payload decoders
package decode

import "github.com/Resonate-Protocol/audiosock/pkg/audio"

// Decoder turns a Data payload back into samples
type Decoder[T audio.Sample] interface {
	// Decode appends the samples held in payload to dst
	Decode(dst []T, payload []byte) ([]T, error)

	// Close releases decoder resources
	Close() error
}
