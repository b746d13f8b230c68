package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/m1k1o/go-hlscache/internal/config"
)

// searched for config.yml when --config is not given
const defCfgPath = "/etc/hlscache/"

// environment variables are HLSCACHE_<KEY>, e.g. HLSCACHE_CACHE_DIR
const envPrefix = "HLSCACHE"

var rootCmd = &cobra.Command{
	Use:     "hlscache",
	Short:   "HLS segment cache CLI.",
	Long:    `Caching proxy for HLS media playlists and their segments.`,
	Version: "1.0.0",
}

// called after configuration is loaded and every time the file changes
var onConfigLoad []func()

var (
	cfgFile string
	logConf = &config.Log{}
)

func init() {
	cobra.OnInitialize(preflight)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file path")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	if err := logConf.Init(rootCmd); err != nil {
		log.Panic().Err(err).Msg("unable to init log config")
	}
}

func Execute() error {
	return rootCmd.Execute()
}

func preflight() {
	if err := loadConfig(); err != nil {
		panic(err)
	}

	logConf.Set()
	setupLogging(logConf)

	if file := viper.ConfigFileUsed(); file != "" {
		watchConfig()
		log.Info().Str("config", file).Msg("preflight complete with config file")
	} else {
		log.Warn().Msg("preflight complete without config file")
	}

	runConfigLoad()
}

func runConfigLoad() {
	for _, fn := range onConfigLoad {
		fn()
	}
}

func loadConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		if runtime.GOOS == "linux" {
			viper.AddConfigPath(defCfgPath)
		}
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// missing default config file is fine, explicitly given one is not
	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		return fmt.Errorf("fatal error config file: %w", err)
	}

	return nil
}

func watchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("file", e.Name).Str("op", e.Op.String()).Msg("config file changed")
		runConfigLoad()
	})
	viper.WatchConfig()
}

func setupLogging(conf *config.Log) {
	var writers []io.Writer

	if conf.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if conf.File != "" {
		writers = append(writers, rotatingFile(conf))
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(io.MultiWriter(writers...))

	level := zerolog.InfoLevel
	if conf.Level != "" {
		parsed, err := zerolog.ParseLevel(conf.Level)
		if err != nil {
			log.Warn().Str("log-level", conf.Level).Msg("unknown log level, using info")
		} else {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("level", level.String()).
		Bool("console", conf.Console).
		Str("file", conf.File).
		Msg("logging configured")
}

// rotatingFile returns log file writer, rotated in response to SIGHUP.
func rotatingFile(conf *config.Log) io.Writer {
	file := &lumberjack.Logger{
		Filename:   conf.File,
		MaxAge:     conf.MaxAge,
		MaxSize:    conf.MaxSize,
		MaxBackups: conf.MaxBackups,
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	go func() {
		for range hup {
			if err := file.Rotate(); err != nil {
				log.Err(err).Msg("unable to rotate log file")
			}
		}
	}()

	return file
}
