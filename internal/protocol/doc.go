// Package protocol owns the OD4 envelope contract.
//
// Ownership boundary:
// - frame: container header framing
// - field: protobuf field primitives
// - schema: message catalog and payload codecs
// - protocol: Envelope encode/decode on top of the three
package protocol
