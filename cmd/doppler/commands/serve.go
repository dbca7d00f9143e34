package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var servePort int

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve MODEL_DIR",
		Short: "Host a model directory's manifest and shards over HTTP",
		Long: `serve exposes MODEL_DIR's manifest.json, tokenizer.json, and
shard_NNNNN.bin files as plain HTTPS-shaped GETs, the wire protocol the
downloader expects: "${base_url}/manifest.json" and
"${base_url}/${shards[i].filename}".

Example:
  doppler serve ./registry/doppler-models/my-model --port 8080`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, args[0])
		},
	}
	cmd.Flags().IntVarP(&servePort, "port", "p", 8080, "TCP port to listen on")
	return cmd
}

func runServe(cmd *cobra.Command, modelDir string) error {
	if fi, err := os.Stat(modelDir); err != nil || !fi.IsDir() {
		return fmt.Errorf("model directory %q: not found or not a directory", modelDir)
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(modelDir)))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", servePort),
		Handler: mux,
	}

	serveLog := log.WithField("modelDir", modelDir).WithField("addr", srv.Addr)

	ctx := cmd.Context()
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	serveLog.Info("serving model directory")
	cmd.Printf("Serving %s on http://localhost:%d\n", modelDir, servePort)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		serveLog.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	}
}
