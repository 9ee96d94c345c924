package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/finrag/internal/adapters/driving/mcp"
)

var (
	mcpPort     int
	mcpReadOnly bool
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Model Context Protocol server",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve finrag to AI assistants over MCP",
	Long: `Serve the query, index_file, list_documents and remove_document tools and
the stats and documents resources over MCP.

Stdio is the default, which is what desktop assistants launch:
  {"mcpServers": {"finrag": {"command": "finrag", "args": ["mcp", "serve"]}}}

With --port the server speaks streamable HTTP instead, for MCP Inspector or
remote clients. --read-only leaves out index_file and remove_document.`,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "HTTP port (0 = use stdio)")
	mcpServeCmd.Flags().BoolVar(&mcpReadOnly, "read-only", false, "only expose tools that do not change the index")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	server, err := mcp.NewServer(&mcp.Ports{
		Query:    queryService,
		Index:    indexService,
		Document: documentService,
		ReadOnly: mcpReadOnly,
	})
	if err != nil {
		return err
	}

	if mcpPort > 0 {
		addr := fmt.Sprintf(":%d", mcpPort)
		cmd.Printf("MCP server listening on http://localhost%s (tools: %v)\n", addr, server.Tools())
		return server.RunHTTP(cmd.Context(), addr)
	}
	return server.Run(cmd.Context())
}
