// Package commands implements the doppler CLI commands.
package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/clocksmith/doppler/pkg/distribution/types"
	"github.com/clocksmith/doppler/pkg/logging"
)

// Exit codes per spec §6: 0 success, 1 usage, 2 I/O, 3 integrity, 4 quota.
const (
	ExitSuccess   = 0
	ExitUsage     = 1
	ExitIO        = 2
	ExitIntegrity = 3
	ExitQuota     = 4
)

var (
	verbose bool
	logJSON bool
	rootDir string

	log logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "doppler",
	Short: "Content-addressed streaming model-delivery engine",
	Long: `doppler ingests large neural-network weight files (GGUF and safetensors
containers), rewrites them into a uniform sharded registry format, and
fetches, resumes, and verifies those shards across a network.

Example:
  doppler convert model.safetensors ./registry
  doppler serve ./registry/doppler-models/my-model --port 8080
  doppler download http://localhost:8080 my-model ./downloaded
  doppler verify ./downloaded/doppler-models/my-model`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}
		logger := logrus.New()
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}
		if logJSON {
			logger.SetFormatter(&logrus.JSONFormatter{})
		}
		if level := os.Getenv("DOPPLER_LOG_LEVEL"); level != "" {
			if lvl, err := logrus.ParseLevel(level); err == nil {
				logger.SetLevel(lvl)
			}
		}
		log = logging.NewLogrusAdapter(logger).WithField("component", "doppler")
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Store root directory; accepted but not read: every command takes its store root from its positional output/model directory")

	rootCmd.AddCommand(
		newConvertCmd(),
		newServeCmd(),
		newDownloadCmd(),
		newVerifyCmd(),
	)
}

// Execute runs the root command under a SIGINT/SIGTERM-cancellable
// context and maps the result to the process exit code.
func Execute() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	return exitCodeFor(err)
}

// exitCodeFor classifies err against the closed error taxonomy (spec §7)
// to pick the process exit code the CLI surface promises in spec §6.
func exitCodeFor(err error) int {
	var quota *types.QuotaExceededError
	if errors.As(err, &quota) {
		return ExitQuota
	}
	var hashMismatch *types.HashMismatchError
	if errors.As(err, &hashMismatch) {
		return ExitIntegrity
	}
	var manifestInvalid *types.ManifestInvalidError
	if errors.As(err, &manifestInvalid) {
		return ExitIntegrity
	}
	var incomplete *integrityFailure
	if errors.As(err, &incomplete) {
		return ExitIntegrity
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return ExitIO
	}
	var usage *UsageError
	if errors.As(err, &usage) {
		return ExitUsage
	}
	rootCmd.PrintErrln("error:", err)
	return ExitIO
}

// UsageError marks an error as an invalid-invocation failure (bad flags,
// wrong argument count/shape) rather than a runtime I/O or integrity
// failure, so Execute maps it to ExitUsage.
type UsageError struct{ error }

func (e *UsageError) Unwrap() error { return e.error }

// integrityFailure is a local marker type errors.As can target; commands
// that find missing/corrupt shards wrap their error in it so Execute maps
// them to ExitIntegrity without commands importing the cobra exit logic
// directly.
type integrityFailure struct{ error }

func (e *integrityFailure) Unwrap() error { return e.error }

func wrapIntegrityFailure(err error) error {
	if err == nil {
		return nil
	}
	return &integrityFailure{err}
}
