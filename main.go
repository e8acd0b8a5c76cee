package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"TalkWire/config"
	"TalkWire/logger"
	"TalkWire/middleware"
	"TalkWire/service/chat"
	"TalkWire/service/relay"
	"TalkWire/service/storage"
	"TalkWire/service/store"
	"TalkWire/service/store/mongostore"
	"TalkWire/service/store/pgstore"
	"TalkWire/tools/ids"
	"TalkWire/tools/safe"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Errorf("load config: %v", err)
		return
	}
	logger.SetLevel(cfg.Log.Level)
	if cfg.Gateway.SnowNode > 0 {
		ids.SetNodeID(cfg.Gateway.SnowNode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Redis.Addr != "" {
		if err := storage.InitRedis(storage.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}); err != nil {
			logger.Errorf("init redis: %v", err)
			return
		}
		defer storage.CloseRedis()
		logger.Infof("redis connected addr=%s", cfg.Redis.Addr)
	} else {
		logger.Warn("redis not configured, presence mirror and hot cache disabled")
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Errorf("open store: %v", err)
		return
	}
	defer st.Close(context.Background())

	opts := chat.Options{
		GatewayID:     cfg.Gateway.NodeID,
		GraceTTL:      time.Duration(cfg.Gateway.GraceSeconds) * time.Second,
		PresenceTTL:   time.Duration(cfg.Gateway.PresenceTTLSeconds) * time.Second,
		SendTimeout:   time.Duration(cfg.Gateway.SendTimeoutSeconds) * time.Second,
		FanoutWorkers: cfg.Gateway.FanoutWorkers,
		FanoutQueue:   cfg.Gateway.FanoutQueue,
		SendBuffer:    cfg.Gateway.SendBuffer,
		AuthSecret:    cfg.Auth.Secret,
	}

	var remote chat.RemoteDeliverer
	var rl *relay.Relay
	if cfg.Nats.URL != "" && cfg.Redis.Addr == "" {
		logger.Warn("nats relay configured without redis; peer gateways cannot be located, cross-node delivery disabled")
	}
	if cfg.Nats.URL != "" {
		rl, err = relay.Dial(relay.Config{URL: cfg.Nats.URL, GatewayID: opts.GatewayID})
		if err != nil {
			logger.Errorf("dial nats: %v", err)
			return
		}
		defer rl.Close()
		remote = rl
		logger.Infof("nats relay connected url=%s", cfg.Nats.URL)
	}

	srv := chat.NewServer(opts, st, remote)
	defer srv.Close()

	if rl != nil {
		if err := rl.Subscribe(srv.Router().DeliverLocal); err != nil {
			logger.Errorf("relay subscribe: %v", err)
			return
		}
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.Cors())
	srv.RegisterRoutes(engine, cfg.Auth.Secret)

	httpSrv := &http.Server{Addr: cfg.Server.Addr, Handler: engine}
	safe.Go(func() {
		logger.Infof("gateway %s listening on %s", srv.GatewayID(), cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http server: %v", err)
			stop()
		}
	})

	<-ctx.Done()
	logger.Info("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutCtx)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return pgstore.New(ctx, &pgstore.Config{DSN: cfg.Store.Postgres.DSN})
	default:
		return mongostore.New(ctx, &mongostore.Config{
			Uri:      cfg.Store.Mongo.Uri,
			Database: cfg.Store.Mongo.Database,
		})
	}
}
