package cli

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"whatif-planner/internal/apiclient"
	"whatif-planner/internal/config"
	"whatif-planner/internal/logger"
	"whatif-planner/internal/model"
	"whatif-planner/internal/planner"
	"whatif-planner/internal/query"
	"whatif-planner/internal/session"
)

// Authenticator logs in and lists the households a login can use.
type Authenticator interface {
	Login(ctx context.Context, username, password string) error
	ListHouseholds(ctx context.Context) ([]model.Household, error)
}

// runtime is everything a command needs once config is loaded.
type runtime struct {
	cfg   config.Config
	log   *zap.Logger
	sess  *session.Session
	auth  Authenticator
	svc   *planner.Service
	close func()
}

type app struct {
	cfgPath string
	asJSON  bool
	verbose bool

	out    io.Writer
	errOut io.Writer

	build func(a *app) (*runtime, error)
	rt    *runtime
}

func newApp(out, errOut io.Writer) *app {
	return &app{out: out, errOut: errOut, build: buildRuntime}
}

func (a *app) runtime() (*runtime, error) {
	if a.rt != nil {
		return a.rt, nil
	}
	rt, err := a.build(a)
	if err != nil {
		return nil, err
	}
	a.rt = rt
	return rt, nil
}

func (a *app) close() {
	if a.rt != nil && a.rt.close != nil {
		a.rt.close()
	}
}

func buildRuntime(a *app) (*runtime, error) {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return nil, err
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	sess, err := session.Open(session.FileStore{Path: cfg.Session.Path})
	if err != nil {
		return nil, err
	}

	client := apiclient.New(sess, apiclient.Options{
		BaseURL:     cfg.API.BaseURL,
		Prefix:      cfg.API.Prefix,
		RefreshPath: cfg.API.RefreshPath,
		LoginPath:   cfg.API.LoginPath,
		Timeout:     cfg.API.Timeout,
		RateLimit:   cfg.API.RateLimit,
		Burst:       cfg.API.Burst,
		Logger:      log,
	})

	store, closeStore, err := cacheStore(cfg.Cache)
	if err != nil {
		return nil, err
	}
	cache := query.NewCache(store, cfg.Cache.StaleTime, log)

	return &runtime{
		cfg:  cfg,
		log:  log,
		sess: sess,
		auth: client,
		svc:  planner.New(client, cache, log),
		close: func() {
			closeStore()
			_ = log.Sync()
		},
	}, nil
}

func cacheStore(cfg config.CacheConfig) (query.Store, func(), error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return query.NewMemoryStore(), func() {}, nil
	case "redis":
		s := query.NewRedisStore(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB}, cfg.Prefix)
		return s, func() { _ = s.Close() }, nil
	}
	return nil, nil, errors.New("cache.backend must be memory or redis")
}
