// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - EmbeddingService: Maps text to fixed-length vectors
//   - VectorIndex: Stores chunk vectors with metadata and searches them
//   - DocumentStore: Document record persistence
//   - Extractor: Turns a file into page-tagged text blocks
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - LLMService: Completion calls. Without it, queries fail with
//     completion_unavailable while indexing keeps working.
//   - PromptStore: Editable prompt templates. Without it, built-in
//     templates are used.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or extractor package
package driven
