package commands

import (
	"fmt"
	"path/filepath"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/clocksmith/doppler/pkg/distribution/internal/downloader"
	"github.com/clocksmith/doppler/pkg/distribution/internal/progress"
	"github.com/clocksmith/doppler/pkg/distribution/internal/store"
	"github.com/clocksmith/doppler/pkg/internal/utils"
)

var downloadConcurrency int

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download BASE_URL MODEL_ID OUTPUT_DIR",
		Short: "Fetch a remote manifest and its shards with resume and retry",
		Long: `download fetches "${BASE_URL}/manifest.json", runs preflight, then
fetches missing shards in parallel with bounded concurrency, retry/backoff,
and hash verification, persisting resumable state in
OUTPUT_DIR/.doppler-downloads.db.

Example:
  doppler download http://localhost:8080 my-model ./downloaded`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd, args[0], args[1], args[2])
		},
	}
	cmd.Flags().IntVar(&downloadConcurrency, "concurrency", 0, "Override the default bounded-concurrency fetch width")
	return cmd
}

func runDownload(cmd *cobra.Command, baseURL, modelID, outputDir string) error {
	ctx := cmd.Context()

	root, err := store.InitRoot(outputDir)
	if err != nil {
		return fmt.Errorf("init output directory: %w", err)
	}

	statePath := filepath.Join(outputDir, ".doppler-downloads.db")
	stateStore, err := downloader.OpenStateStore(statePath)
	if err != nil {
		return fmt.Errorf("open download-state sidecar: %w", err)
	}
	defer stateStore.Close()

	var opts []downloader.Option
	if downloadConcurrency > 0 {
		opts = append(opts, downloader.WithConcurrency(downloadConcurrency))
	}
	d := downloader.New(root, downloader.NewHTTPTransport(nil), stateStore, opts...)

	jobID := uuid.NewString()
	jobLog := log.WithField("job", jobID).
		WithField("modelId", utils.SanitizeForLog(modelID)).
		WithField("baseUrl", utils.SanitizeForLog(baseURL))
	jobLog.Info("starting download")

	sink := progress.NewWriter(cmd.OutOrStdout())
	if err := d.Download(ctx, modelID, baseURL, sink); err != nil {
		jobLog.WithError(err).Error("download failed")
		return fmt.Errorf("download: %w", err)
	}

	info, err := root.GetModelInfo(modelID)
	if err == nil {
		cmd.Printf("Downloaded %q: %d shard(s), %s\n", modelID, info.ShardCount, units.HumanSize(float64(info.TotalSize)))
	}
	jobLog.Info("download complete")
	return nil
}
