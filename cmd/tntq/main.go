// Command tntq runs selects and calls against a Tarantool master/replica set
// described by a YAML config file.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/redis/go-redis/v9"
	"github.com/tarantool/go-tarantool/v2"

	query "github.com/ice-blockchain/go-tarantool-query"
	"github.com/ice-blockchain/go-tarantool-query/pool"
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// globals are the flags shared by every command.
type globals struct {
	configPath string
	logLevel   string
	timeout    time.Duration
}

// session is an open connection together with the resources it owns.
type session struct {
	conn   *query.Connection
	cfg    config
	logger *slog.Logger
	redis  redis.UniversalClient
}

func (s *session) Close() {
	if err := s.conn.Close(); err != nil {
		s.logger.Warn("failed to close connection", "error", err)
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
}

func (g *globals) open() (*session, error) {
	cfg, err := loadConfig(g.configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevels[g.logLevel]}))
	events := query.NewSlogLogger(logger)
	s := &session{cfg: cfg, logger: logger}

	opts := pool.Opts{
		Opener: pool.NetOpener{Opts: tarantool.Opts{Timeout: g.timeout}},
		Logger: events,
	}
	if len(cfg.Redis.Addrs) > 0 {
		s.redis = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		opts.StatusCache = pool.NewRedisStatusCache(s.redis, cfg.Redis.Prefix)
	}
	p, err := pool.NewWithOpts(cfg.Pool, opts)
	if err != nil {
		if s.redis != nil {
			_ = s.redis.Close()
		}
		return nil, err
	}

	cfg.Query.Logger = events
	s.conn = query.NewConnection(p, cfg.Query)
	return s, nil
}

func (g *globals) deadline() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), g.timeout)
}

func main() {
	app := kingpin.New("tntq", "Query a Tarantool master/replica set.")
	g := &globals{}
	app.Flag("config", "Path to the cluster config file.").Short('c').Required().ExistingFileVar(&g.configPath)
	app.Flag("log-level", "Level of the events written to stderr.").Default("warn").
		EnumVar(&g.logLevel, "debug", "info", "warn", "error")
	app.Flag("timeout", "Deadline of the whole command.").Default("10s").DurationVar(&g.timeout)

	sel := &selectCommand{globals: g}
	sel.register(app.Command("select", "Run a select built from a condition.").Action(sel.run))

	render := &selectCommand{globals: g, renderOnly: true}
	render.register(app.Command("render", "Print the select statement without running it.").Action(render.run))

	call := &callCommand{globals: g}
	call.register(app.Command("call", "Call a stored function or evaluate an expression.").Action(call.run))

	info := &infoCommand{globals: g}
	app.Command("info", "Print box.info of the instance serving reads.").Action(info.run)

	kingpin.MustParse(app.Parse(os.Args[1:]))
}
