package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/chzyer/readline"

	"github.com/KevoDB/blockstore/pkg/common/log"
	"github.com/KevoDB/blockstore/pkg/config"
	"github.com/KevoDB/blockstore/pkg/engine"
	"github.com/KevoDB/blockstore/pkg/telemetry"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".stats"),
	readline.PcItem(".backups"),
	readline.PcItem(".exit"),
	readline.PcItem("CREATE"),
	readline.PcItem("INSERT"),
	readline.PcItem("SEARCH"),
	readline.PcItem("EDIT"),
	readline.PcItem("DELETE"),
	readline.PcItem("SORT"),
	readline.PcItem("SHOW"),
	readline.PcItem("DEFRAG"),
	readline.PcItem("COMPACT"),
	readline.PcItem("CLEAR"),
	readline.PcItem("DROP"),
	readline.PcItem("STATUS"),
	readline.PcItem("COUNT"),
	readline.PcItem("FIND"),
	readline.PcItem("META"),
	readline.PcItem("BACKUP"),
	readline.PcItem("RESTORE"),
)

// Flags holds the command line options
type Flags struct {
	ConfigPath string
	Blocks     int
	BackupDir  string
	Codec      string
	LogLevel   string
}

func main() {
	flags := parseFlags()

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %s\n", err)
		os.Exit(1)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	logger := log.NewStandardLogger(log.WithLevel(level), log.WithOutput(os.Stderr))
	log.SetDefaultLogger(logger)
	log.Debug("pool of %d blocks, backups in %s, codec %s", cfg.PoolCapacity, cfg.BackupDir, cfg.SnapshotCodec)

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing telemetry: %s\n", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			log.Warn("telemetry shutdown: %v", err)
		}
	}()

	eng, err := engine.New(cfg, engine.WithLogger(logger), engine.WithTelemetry(tel))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating engine: %s\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	runInteractive(eng)
}

// parseFlags parses command line flags
func parseFlags() Flags {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Blockstore - A simulated block storage disk\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: blockstore [options]\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\nStart blockstore and type .help for the list of commands\n")
	}

	configPath := flag.String("config", "", "Path of a JSON configuration file, created with defaults if missing")
	blocks := flag.Int("blocks", 0, fmt.Sprintf("Number of blocks in the pool (default %d)", config.DefaultPoolCapacity))
	backupDir := flag.String("backup-dir", "", "Directory for backup snapshots (default: config directory or current directory)")
	codec := flag.String("codec", "", "Snapshot codec: none, snappy or zstd")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn or error")

	flag.Parse()

	return Flags{
		ConfigPath: *configPath,
		Blocks:     *blocks,
		BackupDir:  *backupDir,
		Codec:      *codec,
		LogLevel:   *logLevel,
	}
}

// loadConfig reads the configuration file, if any, and applies the flags on top
func loadConfig(flags Flags) (*config.Config, error) {
	var cfg *config.Config

	if flags.ConfigPath != "" {
		var err error
		cfg, err = config.LoadConfig(flags.ConfigPath)
		if err != nil {
			if !errors.Is(err, config.ErrConfigNotFound) {
				return nil, err
			}
			cfg = config.NewDefaultConfig(filepath.Dir(flags.ConfigPath))
			if err := cfg.Save(flags.ConfigPath); err != nil {
				return nil, fmt.Errorf("failed to save configuration: %w", err)
			}
		}
	} else {
		cfg = config.NewDefaultConfig(".")
	}

	cfg.Update(func(c *config.Config) {
		if flags.Blocks != 0 {
			c.PoolCapacity = flags.Blocks
		}
		if flags.BackupDir != "" {
			c.BackupDir = flags.BackupDir
		}
		if flags.Codec != "" {
			c.SnapshotCodec = flags.Codec
		}
		if flags.LogLevel != "" {
			c.LogLevel = flags.LogLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runInteractive starts the interactive CLI mode
func runInteractive(eng *engine.Engine) {
	fmt.Println("Blockstore (blockstore) version 1.0.0")
	fmt.Println("Enter .help for usage hints.")

	historyFile := filepath.Join(os.TempDir(), ".blockstore_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "blockstore> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	logger := log.WithField("component", "cli")
	sh := newShell(eng, rl.Stdout())
	for {
		rl.SetPrompt(sh.prompt())

		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			} else if readErr == io.EOF {
				fmt.Println("Goodbye!")
				break
			}
			logger.Error("reading input: %v", readErr)
			continue
		}

		if sh.execute(line) {
			return
		}
	}
}
