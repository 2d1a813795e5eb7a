package main

import (
	"fmt"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/ChristianGrete/ai-messenger/internal/config"
)

var pathsConfigPath string

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Print the effective data directory",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadPathsConfig()
		if err != nil {
			return err
		}
		fmt.Println(cfg.ResolvedDataDir())
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Print the effective cache directory",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadPathsConfig()
		if err != nil {
			return err
		}
		fmt.Println(cfg.ResolvedCacheDir())
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{dataCmd, cacheCmd} {
		cmd.Flags().StringVar(&pathsConfigPath, "config", config.DefaultConfigPath(), "path to config file")
	}
}

func loadPathsConfig() (*config.Config, error) {
	return config.Load(goutils.Env("AI_MESSENGER_CONFIG", pathsConfigPath))
}
