package serve

import (
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/m1k1o/go-hlscache/internal/config"
	"github.com/m1k1o/go-hlscache/internal/server"
	"github.com/m1k1o/go-hlscache/modules/segmentproxy"
	"github.com/m1k1o/go-hlscache/pkg/segcache"
	"github.com/m1k1o/go-hlscache/pkg/upstream"
)

// path under which are sessions served
const sessionPath = "/song/"

func NewCommand() *Main {
	return &Main{
		ServerConfig:   &config.Server{},
		CacheConfig:    &config.Cache{},
		UpstreamConfig: &config.Upstream{},
		registerer:     prometheus.DefaultRegisterer,
	}
}

type Main struct {
	ServerConfig   *config.Server
	CacheConfig    *config.Cache
	UpstreamConfig *config.Upstream

	logger     zerolog.Logger
	registerer prometheus.Registerer

	// guards configs and components, config reload runs on watcher goroutine
	mu sync.Mutex

	server       *server.ServerManagerCtx
	upstream     *upstream.SourceCtx
	segcache     *segcache.ManagerCtx
	segmentProxy *segmentproxy.ModuleCtx
}

func (main *Main) Configs() []config.Config {
	return []config.Config{
		main.ServerConfig,
		main.CacheConfig,
		main.UpstreamConfig,
	}
}

// Preflight loads every config section, must be called before Run.
func (main *Main) Preflight() {
	main.mu.Lock()
	defer main.mu.Unlock()

	for _, cfg := range main.Configs() {
		cfg.Set()
	}

	main.logger = log.With().Str("service", "main").Logger()
}

func (main *Main) upstreamConfig() *upstream.Config {
	conf := main.UpstreamConfig
	return &upstream.Config{
		Sources:   conf.Sources,
		Template:  conf.Template,
		Command:   conf.Command,
		Args:      conf.Args,
		Timeout:   conf.Timeout,
		UserAgent: conf.UserAgent,
		Headers:   conf.Headers,
	}
}

func (main *Main) start() error {
	main.mu.Lock()
	defer main.mu.Unlock()

	serverConf := main.ServerConfig
	cacheConf := main.CacheConfig

	main.server = server.New(&server.Config{
		Bind:    serverConf.Bind,
		Static:  serverConf.Static,
		SSLCert: serverConf.Cert,
		SSLKey:  serverConf.Key,
		Proxy:   serverConf.Proxy,
		PProf:   serverConf.PProf,
		Metrics: serverConf.Metrics,
	})

	main.upstream = upstream.New(main.upstreamConfig())

	main.segcache = segcache.New(&segcache.Config{
		CacheDir:         cacheConf.Dir,
		SegmentUrlPrefix: segmentproxy.SegmentUrlPrefix,
		Workers:          cacheConf.Workers,
		QueueSize:        cacheConf.QueueSize,
		FetchTimeout:     cacheConf.FetchTimeout,
		UserAgent:        cacheConf.UserAgent,
		WaitTimeout:      cacheConf.WaitTimeout,
		PollInterval:     cacheConf.PollInterval,
		Retention:        cacheConf.Retention,
		JanitorPeriod:    cacheConf.JanitorPeriod,
		Source:           main.upstream,
		Registerer:       main.registerer,
	})

	if err := main.segcache.Start(); err != nil {
		return err
	}

	main.segmentProxy = segmentproxy.New(sessionPath, main.segcache, &segmentproxy.Config{})
	main.server.Handle(sessionPath, main.segmentProxy)
	main.logger.Info().Str("path", sessionPath).Msg("segment proxy registered")

	main.server.Mount(func(r *chi.Mux) {
		r.Get("/health", main.health)
	})

	main.server.Start()
	main.logger.Info().Str("cache-dir", cacheConf.Dir).Msg("serving sessions")
	return nil
}

func (main *Main) health(w http.ResponseWriter, r *http.Request) {
	segments := map[string]int{}
	for state, count := range main.segcache.Stats() {
		segments[state.String()] = count
	}

	w.Header().Set("Content-Type", "application/json")
	//nolint
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"segments": segments,
	})
}

func (main *Main) shutdown() {
	main.mu.Lock()
	defer main.mu.Unlock()

	if main.server != nil {
		err := main.server.Shutdown()
		main.logger.Err(err).Msg("http manager shutdown")
	}

	if main.segmentProxy != nil {
		main.segmentProxy.Shutdown()
		main.logger.Info().Msg("segment proxy shutdown")
	} else if main.segcache != nil {
		main.segcache.Shutdown()
		main.logger.Info().Msg("segment cache shutdown")
	}
}

// ConfigReload re-reads upstream configuration and applies it to the running
// service. Other sections need a restart.
func (main *Main) ConfigReload() {
	main.mu.Lock()
	defer main.mu.Unlock()

	main.UpstreamConfig.Set()

	if main.upstream == nil {
		return
	}

	main.upstream.ConfigReload(main.upstreamConfig())
	main.logger.Info().Msg("upstream config reloaded")
}

func (main *Main) Run(cmd *cobra.Command, args []string) {
	main.logger.Info().Msg("starting main server")
	if err := main.start(); err != nil {
		main.logger.Panic().Err(err).Msg("unable to start main server")
	}
	main.logger.Info().Msg("main ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit

	main.logger.Warn().Msgf("received %s, attempting graceful shutdown", sig)
	main.shutdown()
	main.logger.Info().Msg("shutdown complete")
}
