// Package relay implements the submission side of the task pipeline.
//
// The Service accepts plaintext task submissions, encrypts them, persists a
// task record, and ships the ciphertext to the execution side through the
// outbound dispatcher. Delivery is asynchronous: the caller gets a receipt as
// soon as the record is durable, and a failed delivery is recorded on the
// task record rather than surfaced to the submitter.
//
// Outcomes flow back through result callbacks. HandleResult applies them
// idempotently: a callback for a task that already reached SENT or ERROR
// acknowledges the stored outcome without mutating the record, so the
// execution side may retry callbacks freely.
package relay
