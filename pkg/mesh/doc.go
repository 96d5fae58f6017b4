// Package mesh defines how model handlers exchange messages with the mesh
// transport.
//
// Inbound messages arrive with their metadata (network id, source,
// destination, receive RSSI and TTL) and are routed by a Dispatcher to the
// model handler registered for their opcode. Outbound messages go through
// a Sender, addressed to a device id, a group id or the broadcast address.
//
// Routing, relaying and encryption happen below this package and are not
// visible to the models.
package mesh
