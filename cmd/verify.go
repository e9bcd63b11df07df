package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-auth/internal/config"
	"github.com/kozaktomas/face-auth/internal/facestore"
	"github.com/kozaktomas/face-auth/internal/logging"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <image>",
	Short: "Compare an image against every enrolled face",
	Long: `Runs the configured matcher against each enrolled identity in name order
and reports the distance for each. Unlike live recognition, the scan does not
stop at the first match.`,
	Example: `  face-auth verify ./probe.jpg
  face-auth verify ./probe.jpg --matcher hash --json`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().Bool("no-detect", false, "Compare the whole image without face detection")
	verifyCmd.Flags().String("matcher", "", "Matcher backend: auto, embedding or hash (overrides MATCHER)")
	verifyCmd.Flags().Float64("threshold", 0, "Embedding distance threshold (overrides MATCH_DISTANCE_THRESHOLD)")
	verifyCmd.Flags().Bool("json", false, "Output as JSON")
}

// VerifyResult is the outcome of one comparison.
type VerifyResult struct {
	Name     string  `json:"name"`
	Verified bool    `json:"verified"`
	Distance float64 `json:"distance"`
	Error    string  `json:"error,omitempty"`
}

func runVerify(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	cfg := loadConfig(cmd)
	if backend := mustGetString(cmd, "matcher"); backend != "" {
		cfg.Matcher.Backend = backend
	}
	if threshold := mustGetFloat64(cmd, "threshold"); threshold > 0 {
		cfg.Matcher.DistanceThreshold = threshold
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store := openStore(cfg, logger)
	identities := store.Snapshot()
	if len(identities) == 0 {
		return fmt.Errorf("no faces enrolled in %s", cfg.Faces.Dir)
	}

	probe, cleanup, err := prepareProbe(cmd, cfg, store, args[0], logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m := newMatcher(cfg, logger)

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(identities),
			progressbar.OptionSetDescription("Comparing faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	results := make([]VerifyResult, 0, len(identities))
	for _, id := range identities {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res, err := m.Verify(ctx, probe, id.Path)
		r := VerifyResult{Name: id.Name, Verified: res.Verified, Distance: res.Distance}
		if err != nil {
			logger.Debug("comparison failed", zap.String(logging.FieldIdentity, id.Name), zap.Error(err))
			r.Error = err.Error()
		}
		results = append(results, r)
		if bar != nil {
			bar.Add(1)
		}
	}

	if jsonOutput {
		return outputJSON(results)
	}
	printVerifyResults(results)
	return nil
}

// prepareProbe returns the path of the image to compare. With detection the
// cropped face is written to the store's scratch file, which cleanup removes.
func prepareProbe(cmd *cobra.Command, cfg *config.Config, store *facestore.Store, path string, logger *zap.Logger) (string, func(), error) {
	noop := func() {}
	if mustGetBool(cmd, "no-detect") {
		return path, noop, nil
	}

	img, err := loadImage(path)
	if err != nil {
		return "", noop, err
	}
	face, err := detectFace(cfg, img, logger)
	if err != nil {
		return "", noop, err
	}
	scratch, err := store.WriteScratch(face)
	if err != nil {
		return "", noop, err
	}
	return scratch, func() {
		if err := store.RemoveScratch(); err != nil {
			logger.Warn("failed to remove scratch face", zap.Error(err))
		}
	}, nil
}

func printVerifyResults(results []VerifyResult) {
	fmt.Println()
	matched := ""
	for _, r := range results {
		status := "no match"
		switch {
		case r.Error != "":
			status = "error: " + r.Error
		case r.Verified:
			status = "MATCH"
			if matched == "" {
				matched = r.Name
			}
		}
		fmt.Printf("  %-24s distance %.4f  %s\n", r.Name, r.Distance, status)
	}
	fmt.Println()
	if matched == "" {
		fmt.Println("Not authenticated to access")
		return
	}
	fmt.Printf("Welcome %s\n", matched)
}
