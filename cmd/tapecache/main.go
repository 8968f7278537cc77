package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tapecache/tapecache"
	"github.com/tapecache/tapecache/cache"
	"github.com/tapecache/tapecache/config"
)

var (
	// CLI flags
	configFlag         string
	portFlag           int
	cacheDirFlag       string
	noIndexFlag        bool
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFlag, "config", "", "Path to config file (overrides "+config.EnvConfigPath+")")
	flag.IntVar(&portFlag, "port", 9999, "Port to listen on")
	flag.StringVar(&cacheDirFlag, "cache-dir", "", "Cache record directory (overrides config)")
	flag.BoolVar(&noIndexFlag, "no-index", false, "Do not maintain the sqlite record index")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	configPath := configFlag
	if configPath == "" {
		configPath = config.Path()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load config")
	}

	cacheDir := cacheDirFlag
	if cacheDir == "" {
		cacheDir = cfg.CacheDir
	}
	if cacheDir == "" {
		cacheDir = config.DefaultCacheDir()
	}

	var index *cache.RecordIndex
	if !noIndexFlag {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			log.Fatal().Err(err).Msg("Could not create cache directory")
		}
		index, err = cache.OpenRecordIndex(filepath.Join(cacheDir, "records.db"))
		if err != nil {
			log.Warn().Err(err).Msg("Could not open record index, listing disabled")
		}
	}

	proxy := tapecache.New(tapecache.Config{
		Targets: cfg,
		Store:   cache.NewStore(cacheDir, index),
		Logger:  &log.Logger,
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/*", proxy)

	log.Info().Msgf("Recording proxy on port %v (config %s, cache %s)", portFlag, configPath, cacheDir)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", portFlag), r); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}
