package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/abdelrahman-a99/nucpa-front/internal"
	"github.com/abdelrahman-a99/nucpa-front/internal/config"
	"github.com/abdelrahman-a99/nucpa-front/internal/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := config.DefaultConfig()

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(defaultConfig)
	default:
		data, err = json.MarshalIndent(defaultConfig, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func validateConfig(path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Printf("Validating: %s\n", path)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			printIssue(err.Path, err.Message)
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			printIssue(warn.Path, warn.Message)
		}
	}

	fmt.Println()
	switch {
	case len(result.Errors) == 0 && len(result.Warnings) == 0:
		fmt.Println("Result: PASS")
	case len(result.Errors) == 0:
		fmt.Println("Result: FAIL (warnings present)")
	default:
		fmt.Println("Result: FAIL")
	}

	if len(result.Errors) > 0 || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

func printIssue(path, message string) {
	if path != "" {
		fmt.Printf("  - %s: %s\n", path, message)
		return
	}
	fmt.Printf("  - %s\n", message)
}

// loadDotEnv reads KEY=value pairs before the config resolves its $env
// references. Variables already set in the environment win.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	log.LogDebugWithFields("main", "Loaded environment file", map[string]any{
		"path": path,
	})
	return nil
}

func main() {
	conf := flag.String("config", "", "path to config file, JSON or YAML (required)")
	envFile := flag.String("env-file", ".env", "environment file loaded before the config")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *validate {
		if *conf == "" {
			fmt.Fprintf(os.Stderr, "Error: -config flag is required for validation\n")
			os.Exit(1)
		}
		if err := validateConfig(*conf); err != nil {
			os.Exit(1)
		}
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	if err := loadDotEnv(*envFile); err != nil {
		log.LogError("Failed to load %s: %v", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting nucpa-portal", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	portal, err := internal.NewPortal(context.Background(), cfg, BuildVersion)
	if err != nil {
		log.LogError("Failed to build portal: %v", err)
		os.Exit(1)
	}

	if err := portal.Run(); err != nil {
		log.LogError("Portal stopped: %v", err)
		os.Exit(1)
	}
}
