package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"practice-duel-service/internal/app"
	"practice-duel-service/internal/config"
	"practice-duel-service/internal/domain"
	amqppub "practice-duel-service/internal/infra/amqp"
	"practice-duel-service/internal/infra/memory"
	pgstore "practice-duel-service/internal/infra/postgres"
	redisstore "practice-duel-service/internal/infra/redis"
	"practice-duel-service/internal/logging"
	transport "practice-duel-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the duel coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, *port)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config, portFlag string) error {
	logger := logging.New(os.Stderr, cfg.Log.Level)
	slog.SetDefault(logger)

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, logger); err != nil {
			return err
		}
	}

	deps, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	service := app.NewDuelService(
		deps.rooms,
		deps.items,
		deps.ratings,
		duelSettings(cfg.Duel),
		app.WithLogger(logger),
		app.WithHub(deps.hub),
		app.WithPublisher(deps.publisher),
	)
	router := transport.NewRouter(
		transport.NewAPI(service, logger),
		transport.NewWSHandler(service, logger),
	)

	addr := ":" + listenPort(portFlag, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	if deps.bus != nil {
		group.Go(func() error {
			err := deps.bus.Relay(ctx, deps.hub, nil)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	group.Go(func() error {
		logger.Info("starting duel service", "addr", addr, "redis", deps.bus != nil, "postgres", cfg.Postgres.URL != "")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

type deps struct {
	rooms     app.RoomRepository
	items     app.ItemSource
	ratings   app.SkillRatingSource
	hub       *app.Hub
	bus       *redisstore.EventBus
	publisher app.EventPublisher
	closers   []func() error
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
}

// buildDeps picks Redis/Postgres/RabbitMQ backends when configured and falls
// back to in-memory ones otherwise.
func buildDeps(ctx context.Context, cfg config.Config, logger *slog.Logger) (*deps, error) {
	d := &deps{hub: app.NewHub()}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.closers = append(d.closers, redisClient.Close)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			d.close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
	}

	var loader memory.ItemLoader = memory.NewItemCatalog(sampleItems())
	d.ratings = memory.SkillRatings{}
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		d.closers = append(d.closers, func() error { pool.Close(); return nil })
		loader = pgstore.NewItemLoader(pool)
		d.ratings = pgstore.NewSkillRatings(pool)
	}

	itemTTL := config.TTLDuration(cfg.Items.TTL, 10*time.Minute)
	retention := config.TTLDuration(cfg.Redis.Retention, time.Hour)
	publishers := app.MultiPublisher{}
	if redisClient != nil {
		d.items = redisstore.NewItemRepository(redisClient, loader, itemTTL)
		d.rooms = redisstore.NewRoomStore(redisClient, retention)
		d.bus = redisstore.NewEventBus(redisClient, logger)
		// Local subscribers are fed by the relay so every replica sees every event.
		publishers = append(publishers, d.bus)
	} else {
		d.items = memory.NewItemRepository(loader, itemTTL)
		d.rooms = memory.NewRoomStore()
		publishers = append(publishers, d.hub)
	}

	if cfg.AMQP.URL != "" {
		exchange := cfg.AMQP.Exchange
		if exchange == "" {
			exchange = "duel.events"
		}
		pub, err := amqppub.Dial(cfg.AMQP.URL, exchange)
		if err != nil {
			d.close()
			return nil, err
		}
		d.closers = append(d.closers, pub.Close)
		publishers = append(publishers, pub)
	}
	d.publisher = publishers
	return d, nil
}

// duelSettings overlays configured values on the defaults.
func duelSettings(c config.DuelConfig) app.Settings {
	s := app.DefaultSettings()
	if c.DefaultItemCount > 0 {
		s.DefaultItemCount = c.DefaultItemCount
	}
	if c.MaxItems > 0 {
		s.MaxItems = c.MaxItems
	}
	if c.MinPlayers > 0 {
		s.MinPlayers = c.MinPlayers
	}
	if c.MaxPlayers > 0 {
		s.MaxPlayers = c.MaxPlayers
	}
	if c.PlayerCap > 0 {
		s.PlayerCap = c.PlayerCap
	}
	if c.RatingTolerance > 0 {
		s.RatingTolerance = c.RatingTolerance
	}
	if c.NeutralRating > 0 {
		s.NeutralRating = c.NeutralRating
	}
	s.RoomTTL = config.TTLDuration(c.RoomTTL, s.RoomTTL)
	return s
}

func listenPort(flag, configured string) string {
	if flag != "" {
		return flag
	}
	if configured != "" {
		return configured
	}
	return "8080"
}

// sampleItems seeds the in-memory catalog when no database is configured.
func sampleItems() []domain.Item {
	return []domain.Item{
		{ID: "arith-1", TopicID: "arithmetic", Prompt: "What is 7 x 8?", Format: domain.FormatShortAnswer, Difficulty: 1300},
		{ID: "arith-2", TopicID: "arithmetic", Prompt: "Is 91 a prime number?", Format: domain.FormatTrueFalse, Difficulty: 1450},
		{ID: "arith-3", TopicID: "arithmetic", Prompt: "Which is larger: 3/4 or 5/8?", Format: domain.FormatMultipleChoice, Difficulty: 1400},
		{ID: "arith-4", TopicID: "arithmetic", Prompt: "What is 15% of 240?", Format: domain.FormatShortAnswer, Difficulty: 1550},
		{ID: "arith-5", TopicID: "arithmetic", Prompt: "What is the square root of 169?", Format: domain.FormatShortAnswer, Difficulty: 1500},
		{ID: "geo-1", TopicID: "geography", Prompt: "What is the capital of Canada?", Format: domain.FormatMultipleChoice, Difficulty: 1350},
		{ID: "geo-2", TopicID: "geography", Prompt: "The Danube flows into the Black Sea.", Format: domain.FormatTrueFalse, Difficulty: 1600},
		{ID: "geo-3", TopicID: "geography", Prompt: "Which country has the most time zones?", Format: domain.FormatMultipleChoice, Difficulty: 1700},
		{ID: "geo-4", TopicID: "geography", Prompt: "Name the longest river in South America.", Format: domain.FormatShortAnswer, Difficulty: 1500},
		{ID: "geo-5", TopicID: "geography", Prompt: "Mount Kilimanjaro is in Kenya.", Format: domain.FormatTrueFalse, Difficulty: 1450},
		{ID: "essay-1", TopicID: "geography", Prompt: "Describe how plate tectonics shape coastlines.", Format: domain.FormatEssay, Difficulty: 1500},
	}
}
