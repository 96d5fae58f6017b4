// Package wire defines the message formats of the Asset and Tracker
// models.
//
// # Model Payloads
//
// Model messages are identified by a 16-bit Opcode and carry a fixed
// layout, little-endian payload. Each message type implements
// encoding.BinaryMarshaler and encoding.BinaryUnmarshaler. Decoding a
// payload shorter than its layout fails with ErrShortPayload; trailing
// bytes are ignored for forward compatibility.
//
// # Frames
//
// Bearers carry model messages inside a Frame: a CBOR map with integer
// keys holding the network id, source and destination addresses, TTL,
// opcode and payload. Simulated bearers may also attach the receive RSSI.
//
//	{
//	  1: networkId,  // uint8
//	  2: src,        // uint16
//	  3: dst,        // uint16
//	  4: ttl,        // uint8
//	  5: opcode,     // uint16
//	  6: payload,    // bytes
//	  7: rssi        // int8, optional
//	}
package wire
