// Package analysis provides the interface and local implementation for the
// processing step applied to decrypted relay payloads. It abstracts the
// provider (Gemini or a deterministic echo transform) so the pipeline can
// run the analysis boundary without coupling to external services.
package analysis
