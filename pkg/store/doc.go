// Package store provides the word-addressed persistent store used by the
// mesh models to keep their configuration across restarts.
//
// The store mirrors a small NVM: a flat array of 16-bit words addressed by
// offset. Each model owns a fixed range of words starting at its base
// offset and is responsible for its own layout.
//
// Writes are synchronous and atomic per call only. No transactional
// grouping across calls is offered; a crash between two writes can leave a
// model's persisted state half updated.
package store
