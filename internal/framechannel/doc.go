// Package framechannel owns the consumer side of the shared-memory frame
// exchange with an external producer.
//
// Ownership boundary:
// - key derivation for segment (1), mutex (2), condition (3)
// - attach/detach of the segment and both semaphores
// - AcquireFrame: condition wait, mutex-guarded copy-out, release
//
// The mutex is held only for the copy. Callers own the returned Frame.
package framechannel
