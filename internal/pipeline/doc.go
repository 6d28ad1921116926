// Package pipeline implements the execution side of the relay: accepting
// encrypted task submissions idempotently, walking each task record through
// the decrypt-analyze-encrypt chain, and posting the result back to the
// submission side.
//
// The package is built from four cooperating pieces:
//
//   - Receiver: handles inbound submissions; one durable record per task id
//     regardless of how many times the id is delivered.
//   - Runner: a worker pool fed by a bounded queue, with an in-process
//     in-flight set so a record is owned by at most one worker at a time.
//   - Processor: advances a single record through the status chain, every
//     step a status-guarded store transition.
//   - CallbackSender: posts results and failures to the submission side
//     through the outbound dispatcher.
//
// Records persist independently of the queue, so a restart recovers
// unfinished work by re-enqueuing every non-terminal record.
package pipeline
