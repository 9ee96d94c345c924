// Package file provides file-based implementations of driven port interfaces.
//
// Adapters:
//   - ConfigStore: TOML configuration with FINRAG_* environment overrides
//   - PromptStore: editable prompt templates with embedded defaults
package file
