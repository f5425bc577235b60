package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nghyane/query-gateway/internal/bootstrap"
	"github.com/nghyane/query-gateway/internal/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config file",
	RunE: func(c *cobra.Command, _ []string) error {
		path := cfgFile
		if path == "" {
			path = bootstrap.DefaultConfigPath
		}
		return DoInitConfig(path, initForce)
	},
}

// DoInitConfig writes the commented default configuration to configPath.
// An existing file is kept unless force is set.
func DoInitConfig(configPath string, force bool) error {
	resolved, err := bootstrap.ResolvePath(configPath)
	if err != nil {
		return err
	}
	if fileExists(resolved) && !force {
		fmt.Printf("Config already exists: %s\n", resolved)
		fmt.Println("Use init --force to overwrite")
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(resolved, config.GenerateDefaultConfigYAML(), 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Printf("Created: %s\n", resolved)
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
