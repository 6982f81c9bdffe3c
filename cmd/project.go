package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mindweaver/ragchunk/internal/project"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new ragchunk project",
	Long: `Initialize a new .ragchunk directory in the current project.

This creates config.yaml with default settings and the directories used for
export output and the search index. Gradle and Maven builds are inspected to
name the project.`,
	Run: func(cmd *cobra.Command, args []string) {
		cwd, err := os.Getwd()
		if err != nil {
			exitError("failed to get current directory: %v", err)
		}

		p, err := project.Initialize(cwd)
		if err != nil {
			exitError("%v", err)
		}
		logger.Debug("initialized project", zap.String("path", p.GetConfigDir()))

		if jsonOutput {
			if err := outputJSON(map[string]interface{}{
				"success": true,
				"path":    p.GetConfigDir(),
				"project": p.Config,
			}); err != nil {
				exitError("failed to encode JSON: %v", err)
			}
			return
		}

		fmt.Printf("Initialized ragchunk project %q at %s\n", p.Config.Name, p.GetConfigDir())
		if b := p.Config.Build; b != nil {
			fmt.Printf("  Build: %s", b.Tool)
			if b.KotlinVersion != "" {
				fmt.Printf(" (Kotlin %s)", b.KotlinVersion)
			}
			fmt.Println()
			if len(b.Frameworks) > 0 {
				fmt.Printf("  Frameworks: %s\n", strings.Join(b.Frameworks, ", "))
			}
			if len(b.SourceRoots) > 0 {
				fmt.Printf("  Source roots: %s\n", strings.Join(b.SourceRoots, ", "))
			}
		}
		fmt.Println("\nNext steps:")
		fmt.Println("  ragchunk scan            # Chunk the project and export")
		fmt.Println("  ragchunk scan --index    # Also build the search index")
		fmt.Println("  ragchunk config show     # Review settings")
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect project configuration",
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration in effect, with defaults filled in for keys missing
from config.yaml.`,
	Run: func(cmd *cobra.Command, args []string) {
		p := projectOrDefault()

		if jsonOutput {
			if err := outputJSON(map[string]interface{}{
				"root":   p.RootPath,
				"config": p.Config,
			}); err != nil {
				exitError("failed to encode JSON: %v", err)
			}
			return
		}

		data, err := yaml.Marshal(p.Config)
		if err != nil {
			exitError("failed to encode config: %v", err)
		}
		fmt.Printf("# root: %s\n", p.RootPath)
		fmt.Print(string(data))
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
}
