package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "osmtile",
	Short: "An OpenStreetMap raster tile renderer",
	Long: `osmtile renders 800x600 PNG map tiles from OpenStreetMap data held in a
SQLite or PostgreSQL feature store.

Tiles are cached on disk as {cache-dir}/{zoom}/{x}_{y}.png; a cached tile is
never rendered twice. Use "ingest" to build a feature store from an .osm/.pbf
file or the Overpass API, then "render" or "batch" to produce tiles.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("db", "osm.db", "Feature store: SQLite file path or PostgreSQL DSN")
	rootCmd.PersistentFlags().String("db-driver", "sqlite", "Feature store driver (sqlite, postgres)")
	rootCmd.PersistentFlags().String("cache-dir", "cache", "Directory of rendered tiles")
	rootCmd.PersistentFlags().String("style-file", "", "Tag color table (default: built-in style)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose logging")

	bindPersistent := []struct {
		key  string
		flag string
	}{
		{"db", "db"},
		{"db_driver", "db-driver"},
		{"cache_dir", "cache-dir"},
		{"style_file", "style-file"},
		{"verbose", "verbose"},
	}
	for _, bf := range bindPersistent {
		if err := viper.BindPFlag(bf.key, rootCmd.PersistentFlags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("OSMTILE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// bindFlags binds each command flag to a viper key, panicking on typos.
func bindFlags(cmd *cobra.Command, prefix string, flags ...string) {
	for _, flag := range flags {
		key := prefix + "." + strings.ReplaceAll(flag, "-", "_")
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", flag, err))
		}
	}
}
