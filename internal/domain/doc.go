// Package domain contains the core entities of the relay pipeline: the task
// record, its seven-status lifecycle, and the transition rules between
// statuses. It is independent of any storage or delivery mechanism.
package domain
