package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/finrag/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/finrag/internal/adapters/driving/mcp"
	"github.com/custodia-labs/finrag/internal/connectors/filesystem"
	"github.com/custodia-labs/finrag/internal/core/domain"
)

var (
	serveAddr  string
	serveWatch string
	serveMCP   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the JSON HTTP API for uploading reports and asking questions.

Endpoints:
  GET    /api/health          liveness and index size
  POST   /api/upload          multipart upload (field "file"), indexed in the background
  POST   /api/query           {"question": "...", "top_k": 5, "document_id": "..."}
  GET    /api/documents       list documents
  GET    /api/documents/{id}  document status
  DELETE /api/documents/{id}  remove a document and its chunks
  GET    /api/stats           query statistics
  /mcp                        MCP over streamable HTTP (unless --mcp=false)

With --watch, files dropped into the directory are indexed automatically
and documents are removed when their files are deleted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "listen address (default from settings, "+domain.DefaultServerAddr+")")
	serveCmd.Flags().StringVarP(&serveWatch, "watch", "w", "", "inbox directory to index automatically")
	serveCmd.Flags().BoolVar(&serveMCP, "mcp", true, "mount the MCP endpoint at /mcp")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	addr, watchDir := serveAddr, serveWatch
	maxUpload := int64(domain.DefaultMaxUploadBytes)
	if settingsService != nil {
		if settings, err := settingsService.Get(); err == nil {
			if addr == "" {
				addr = settings.Server.Addr
			}
			if watchDir == "" {
				watchDir = settings.Server.WatchDir
			}
			maxUpload = settings.Server.MaxUploadBytes
		}
	}
	if addr == "" {
		addr = domain.DefaultServerAddr
	}

	server, err := httpapi.NewServer(&httpapi.Ports{
		Query:    queryService,
		Index:    indexService,
		Document: documentService,
	}, httpapi.Config{
		UploadDir:      uploadDir,
		MaxUploadBytes: maxUpload,
		Supports:       supportsFile,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP API: %w", err)
	}

	if serveMCP {
		mcpServer, err := mcp.NewServer(&mcp.Ports{
			Query:    queryService,
			Index:    indexService,
			Document: documentService,
		})
		if err != nil {
			return fmt.Errorf("failed to create MCP server: %w", err)
		}
		server.Handle("/mcp", mcpServer.Handler())
	}

	g, ctx := errgroup.WithContext(cmd.Context())

	if watchDir != "" {
		if indexService == nil {
			return errors.New("index service not configured")
		}
		watcher := filesystem.NewWatcher(watchDir, indexService,
			filesystem.WithSupports(supportsFile),
			filesystem.WithDocuments(documentService),
		)
		cmd.Printf("Watching %s\n", watcher.Dir())
		g.Go(func() error {
			return watcher.Run(ctx)
		})
	}

	cmd.Printf("Serving on http://%s\n", addr)
	g.Go(func() error {
		return server.Run(ctx, addr)
	})

	return g.Wait()
}
