// Package transport provides the bearers that carry mesh frames between
// nodes.
//
// A Bearer sends outbound model messages and hands inbound ones to a
// Receiver, usually node.Node.Deliver. The bearers are:
//
//   - Bus: an in-process broadcast medium for simulations and tests. Link
//     RSSI comes from an RSSIFunc.
//   - StreamBearer: length-prefixed CBOR frames over a byte stream, for a
//     serial or TCP link to a mesh gateway.
//   - GatewayBearer: a StreamBearer that redials its gateway with backoff
//     when the link drops.
//   - MQTTBearer: CBOR frames published to <prefix>/<networkID> on an MQTT
//     broker, for distributed simulations and bridged deployments.
//   - BLEBearer: compact frames in BLE advertisement manufacturer data,
//     RSSI taken from scan results.
//
// Bearers do no routing or relaying; each frame is heard once by every
// other node on the medium.
package transport
