// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting for both relay services. It acts as an adapter
// between the wire contract the peers share and the internal pipeline and
// relay services, translating HTTP concerns to task operations.
package api
