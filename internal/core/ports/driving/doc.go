// Package driving declares what the CLI, TUI, MCP server and HTTP API may
// ask of finrag: index reports, answer questions, manage documents and
// settings. internal/core/services implements every interface here.
package driving
