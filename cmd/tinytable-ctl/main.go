package main

import (
	"fmt"
	"os"

	"github.com/pingcap-incubator/tinytable/table/config"
	"github.com/pingcap-incubator/tinytable/table/storage"
	"github.com/pingcap-incubator/tinytable/table/timeline"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	tableName  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "tinytable-ctl",
		Short:         "Inspect the timeline and write concurrency state of a table",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "table config file (toml or yaml)")
	rootCmd.PersistentFlags().StringVarP(&tableName, "table", "t", "", "override the table name of the config")

	rootCmd.AddCommand(
		newTimelineCommand(),
		newPendingCommand(),
		newCheckCommand(),
		newLockCommand(),
		newServeCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if configPath == "" {
		cfg = config.NewDefaultConfig()
		if err := cfg.Adjust(nil); err != nil {
			return nil, err
		}
	} else {
		var err error
		if cfg, err = config.LoadFile(configPath); err != nil {
			return nil, err
		}
	}
	if tableName != "" {
		cfg.TableName = tableName
	}
	if err := cfg.SetupLogger(); err != nil {
		return nil, errors.Annotate(err, "setup logger")
	}
	log.ReplaceGlobals(cfg.GetZapLogger(), cfg.GetZapLogProperties())
	for _, msg := range cfg.WarningMsgs {
		log.Warn(msg)
	}
	return cfg, nil
}

// openTimeline opens the store of cfg and loads the table's timeline. The returned function closes the store.
func openTimeline(cfg *config.Config) (*timeline.ActiveTimeline, func(), error) {
	base, err := storage.Open(&cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	at, err := timeline.OpenActiveTimeline(base, cfg.TableName)
	if err != nil {
		base.Close()
		return nil, nil, err
	}
	return at, func() { base.Close() }, nil
}
