package cmd

import (
	"fmt"
	"image"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-auth/internal/facestore"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <name> <image>",
	Short: "Enroll a face from an image file",
	Long: `Detects the largest face in the image and stores it as the reference
image for the given name. An existing enrollment with the same name is
replaced.`,
	Example: `  face-auth enroll alice ./alice.jpg
  face-auth enroll bob ./bob-cropped.png --no-detect`,
	Args: cobra.ExactArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	enrollCmd.Flags().Bool("no-detect", false, "Store the whole image without face detection")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	name, path := args[0], args[1]
	noDetect := mustGetBool(cmd, "no-detect")
	jsonOutput := mustGetBool(cmd, "json")

	cfg := loadConfig(cmd)
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	img, err := loadImage(path)
	if err != nil {
		return err
	}

	var face image.Image = img
	if !noDetect {
		face, err = detectFace(cfg, img, logger)
		if err != nil {
			return err
		}
	}

	store := facestore.New(cfg.Faces.Dir, logger)
	id, err := store.Enroll(name, face)
	if err != nil {
		return fmt.Errorf("enrolling %q: %w", name, err)
	}

	if jsonOutput {
		return outputJSON(id)
	}
	fmt.Printf("Face registered: %s\n", id.Name)
	fmt.Printf("  File: %s\n", id.Path)
	return nil
}
