package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var facesCmd = &cobra.Command{
	Use:   "faces",
	Short: "List enrolled faces",
	Long:  `Lists the enrolled identities in the order recognition compares them.`,
	Args:  cobra.NoArgs,
	RunE:  runFaces,
}

func init() {
	rootCmd.AddCommand(facesCmd)
	facesCmd.Flags().Bool("json", false, "Output as JSON")
}

func runFaces(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	cfg := loadConfig(cmd)
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	identities := openStore(cfg, logger).Snapshot()

	if jsonOutput {
		return outputJSON(identities)
	}
	if len(identities) == 0 {
		fmt.Printf("No faces enrolled in %s\n", cfg.Faces.Dir)
		return nil
	}
	fmt.Printf("Enrolled faces (%d):\n", len(identities))
	for _, id := range identities {
		fmt.Printf("  %-24s %s\n", id.Name, filepath.Base(id.Path))
	}
	return nil
}
