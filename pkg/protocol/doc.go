// ABOUTME: Wire protocol package
// ABOUTME: Defines Config/Data messages and their length-prefixed framing
// Package protocol implements the audiosock wire protocol.
//
// A session is one Config frame followed by any number of Data frames, the
// last of which has Terminate set. Every frame starts with a big-endian
// uint32 body length so that byte-stream transports can split and join
// reads into whole messages:
//
//	frame  = length:u32 kind:u8 fields...
//	Config = 0x01 format:u8 order:u8 channels:u16 rate:u32
//	Data   = 0x02 flags:u8 payload...        (flags bit 0 = terminate)
//
// All decode failures wrap ErrSchema.
//
// Example:
//
//	frame, err := protocol.EncodeConfig(protocol.Config{
//	    SampleFormat: audio.FormatF32,
//	    Channels:     1,
//	    SampleRate:   44100,
//	    ByteOrder:    audio.LittleEndian,
//	})
package protocol
