package commands

import (
	"fmt"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/clocksmith/doppler/pkg/distribution/internal/filesource"
	"github.com/clocksmith/doppler/pkg/distribution/internal/importer"
	"github.com/clocksmith/doppler/pkg/distribution/internal/progress"
	"github.com/clocksmith/doppler/pkg/distribution/internal/store"
)

var convertQuantize string

func newConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert INPUT OUTPUT_DIR",
		Short: "Import a GGUF or safetensors container into a sharded registry",
		Long: `convert streams a source container's tensor-data region into
OUTPUT_DIR's shard store, writing fixed-size content-addressed shards and
a normalized manifest.json.

Example:
  doppler convert model.safetensors ./registry`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, args[0], args[1])
		},
	}
	cmd.Flags().StringVar(&convertQuantize, "quantize", "", "Quantization label to annotate in manifest metadata (no bit-level recoding)")
	return cmd
}

func runConvert(cmd *cobra.Command, input, outputDir string) error {
	ctx := cmd.Context()

	src, err := filesource.Open(input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}

	root, err := store.InitRoot(outputDir)
	if err != nil {
		return fmt.Errorf("init output directory: %w", err)
	}

	sink := progress.NewWriter(cmd.OutOrStdout())
	opts := importer.Options{Progress: sink}

	logEntry := log.WithField("input", input).WithField("output", outputDir)
	logEntry.Info("starting import")

	manifest, err := importer.Import(ctx, root, src, opts)
	if err != nil {
		logEntry.WithError(err).Error("import failed")
		return fmt.Errorf("import: %w", err)
	}

	if convertQuantize != "" {
		if manifest.Metadata == nil {
			manifest.Metadata = map[string]string{}
		}
		manifest.Metadata["requestedQuantization"] = convertQuantize
		handle, err := root.OpenModel(manifest.ModelID)
		if err == nil {
			handle.SaveManifest(manifest)
		}
	}

	cmd.Printf("Imported %q: %d shard(s), %s total\n", manifest.ModelID, len(manifest.Shards), units.HumanSize(float64(manifest.TotalSize)))
	return nil
}
