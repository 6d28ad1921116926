// Package events provides types and interfaces for surfacing pipeline
// incidents to operators.
//
// This package defines event types and handler interfaces that allow for
// loose coupling between components in the system. The relay and pipeline
// services emit events when a task fails or a delivery exhausts its retry
// budget, without knowing which handlers will process them. Handlers range
// from structured log alerts to whatever paging integration a deployment
// wires in.
//
// The primary components are:
// - PipelineEvent: Represents a pipeline incident tied to a task record
// - EventHandler: Interface for components that can handle events
// - EventEmitter: Interface for components that can emit events
package events
