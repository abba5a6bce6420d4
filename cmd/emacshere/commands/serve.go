package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/emacshere/internal/api"
	"github.com/bryanchriswhite/emacshere/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the drop pipeline over HTTP",
	Long: `Start an HTTP server on localhost that opens paths in the target
application on request.

Endpoints:
  GET  /api/health
  GET  /api/config
  GET  /api/candidates
  POST /api/drop           {"path": "/abs/path"}
  GET  /api/drop/stream    ?path=/abs/path (WebSocket)`,
	Example: `  # Start server on default port (7077)
  emacshere serve

  # Start server on custom port
  emacshere serve --port 9090

  # Open a file through the server
  curl -d '{"path":"/etc/hosts"}' http://localhost:7077/api/drop`,
	Args: usageArgs(cobra.NoArgs),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "server port (default is 7077)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("cli")
	server := api.NewServer(newRunner(), configMgr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.ServerPort)
	}()

	log.Info().
		Int("port", cfg.ServerPort).
		Str("class", cfg.TargetClass).
		Msg("emacshere is serving")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigChan:
		log.Info().Msg("Shutting down")
		return nil
	}
}
