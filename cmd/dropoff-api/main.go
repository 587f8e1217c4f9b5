// README: Entry point; loads config, wires services, starts the HTTP server, proximity monitors and the Kafka outbox.
package main

import (
    "context"
    "log"
    "os"
    "os/signal"
    "syscall"

    "github.com/joho/godotenv"
    "golang.org/x/sync/errgroup"

    "dropoff/internal/config"
    "dropoff/internal/events"
    httptransport "dropoff/internal/http"
    "dropoff/internal/infra"
    "dropoff/internal/maps"
    "dropoff/internal/messaging"
    "dropoff/internal/modules/location"
    "dropoff/internal/modules/order"
    "dropoff/internal/modules/proximity"
)

func main() {
    if err := godotenv.Load(); err != nil {
        log.Printf("no .env file loaded: %v", err)
    }

    cfg, err := config.Load()
    if err != nil {
        log.Fatal(err)
    }

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
    if err != nil {
        log.Fatal(err)
    }
    defer redisClient.Close()

    var (
        orderStore    order.Repository
        locationStore *location.Store
    )
    switch cfg.DB.Driver {
    case "sqlite":
        db, err := infra.NewSQLite(cfg.DB.SQLitePath)
        if err != nil {
            log.Fatal(err)
        }
        defer db.Close()
        sqlStore, err := order.NewSQLStore(ctx, db)
        if err != nil {
            log.Fatalf("sqlite migrate: %v", err)
        }
        orderStore = sqlStore
        locationStore = location.NewStore(nil, redisClient)
    default:
        dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
        if err != nil {
            log.Fatal(err)
        }
        defer dbPool.Close()
        orderStore = order.NewStore(dbPool)
        locationStore = location.NewStore(dbPool, redisClient)
    }

    bus := events.NewBus()
    orderSvc := order.NewService(orderStore, order.WithEventBus(bus))
    locationSvc := location.NewService(locationStore, cfg.Delivery.SnapshotEvery)

    var upstream maps.Geocoder
    if cfg.Maps.APIKey != "" {
        gs, err := maps.NewGeocodeService(cfg.Maps.APIKey, cfg.Maps.Region)
        if err != nil {
            log.Fatalf("maps init: %v", err)
        }
        upstream = gs
    } else if cfg.Maps.StaticFile != "" {
        static, err := maps.LoadStaticGeocoder(cfg.Maps.StaticFile)
        if err != nil {
            log.Fatalf("static geocoder: %v", err)
        }
        upstream = static
    } else {
        log.Printf("no geocoder configured; automatic arrivals are disabled")
        upstream = maps.NewStaticGeocoder(nil)
    }
    geocoder := maps.NewCachedGeocoder(redisClient, upstream, cfg.Maps.CacheTTL)

    deps := proximity.Deps{
        Lifecycle: orderSvc,
        Geocoder:  geocoder,
        Source:    locationSvc,
        Logger:    infra.StdLogger{Prefix: "proximity: "},
    }

    var verifier infra.TokenVerifier = infra.DenyVerifier{}
    if cfg.Firebase.ProjectID != "" {
        app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.DatabaseURL)
        if err != nil {
            log.Fatalf("firebase init: %v", err)
        }
        verifier, err = infra.NewFirebaseVerifier(ctx, app)
        if err != nil {
            log.Fatalf("firebase auth: %v", err)
        }
        fs, err := location.NewFirebaseService(ctx, app, cfg.Firebase.DatabaseURL != "")
        if err != nil {
            log.Fatalf("firebase location: %v", err)
        }
        deps.Adaptive = fs
        bus.Subscribe(fs.OnTransition)
    } else {
        log.Printf("FIREBASE_PROJECT_ID not set; API requests will be rejected")
    }

    monitors := proximity.NewManager(proximity.Config{
        ArrivalRadiusMeters: cfg.Delivery.ArrivalRadiusM,
        MaxAccuracyMeters:   cfg.Delivery.MaxAccuracyM,
        ConfirmationWindow:  cfg.Delivery.ConfirmationWindow,
        MinReadings:         cfg.Delivery.MinReadings,
        PollInterval:        cfg.Delivery.PollInterval,
        MinMoveMeters:       cfg.Delivery.MinMoveM,
        SampleBuffer:        cfg.Delivery.SampleBuffer,
    }, deps)
    defer monitors.Shutdown()
    bus.Subscribe(monitors.HandleEvent)

    g, gctx := errgroup.WithContext(ctx)

    if len(cfg.Kafka.Brokers) > 0 {
        pub, err := messaging.NewPublisher(messaging.Config{
            Brokers:    cfg.Kafka.Brokers,
            Topic:      cfg.Kafka.Topic,
            OutboxSize: cfg.Kafka.OutboxSize,
            MaxRetries: cfg.Kafka.MaxRetries,
            RetryDelay: cfg.Kafka.RetryDelay,
        }, infra.StdLogger{Prefix: "messaging: "})
        if err != nil {
            log.Fatalf("kafka init: %v", err)
        }
        defer pub.Close()
        bus.Subscribe(pub.HandleEvent)
        g.Go(func() error { return pub.Run(gctx) })
    }

    router := httptransport.NewRouter(httptransport.RouterDeps{
        Order:      orderSvc,
        Location:   locationSvc,
        Monitors:   monitors,
        Verifier:   verifier,
        QueueLimit: cfg.Delivery.QueueLimit,
    })
    server := httptransport.NewServer(httptransport.ServerConfig{
        Addr:            cfg.HTTP.Addr,
        ReadTimeout:     cfg.HTTP.ReadTimeout,
        WriteTimeout:    cfg.HTTP.WriteTimeout,
        ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
    }, router)
    g.Go(func() error { return server.Run(gctx) })

    if err := g.Wait(); err != nil {
        log.Printf("shutdown: %v", err)
    }
}
