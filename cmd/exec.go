package cmd

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"

	"debate-arena/config"
	"debate-arena/internal/ai"
	"debate-arena/internal/handlers"
	"debate-arena/internal/realtime"
	"debate-arena/internal/services"
	"debate-arena/internal/store"
	"debate-arena/models"
	"debate-arena/monitoring"
	"debate-arena/security"
	"debate-arena/utils"

	_ "debate-arena/migrations"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(utils.RedisOptions{
		URL:          cfg.RedisURL,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     cfg.RedisPoolSize,
		MinIdleConns: cfg.RedisMinIdleConns,
	})
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// Initialize PubNub
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId("debate-arena-server"))
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)
	notifier := realtime.NewPubNubNotifier(pn)

	// Initialize the AI judge with a circuit breaker in front of the
	// provider so a degraded API fails fast instead of stalling debates.
	completer, err := ai.New(cfg.AIProvider, cfg.AIAPIKey, cfg.AIModel)
	if err != nil {
		return err
	}
	completer = ai.WithCircuitBreaker(completer, utils.NewCircuitBreaker("ai-judge"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services
	st := store.NewPocketBase(app)
	monitor := monitoring.NewMonitor(redisClient)

	ratingService := services.NewRatingService()
	judgeService := services.NewJudgeService(completer)
	debateService := services.NewDebateService(st, ratingService, judgeService, notifier, monitor, redisClient, services.DebateConfig{
		MaxRounds:       cfg.MaxRounds,
		TimePerTurn:     cfg.TimePerTurn,
		TimeoutInterval: cfg.TimeoutInterval,
	})
	leaderboardService := services.NewLeaderboardService(redisClient)
	debateService.AttachLeaderboard(leaderboardService)

	aiOpponent := services.NewAIOpponentService(completer, debateService)
	debateService.AttachTurnListener(func(d *models.Debate) {
		go aiOpponent.MaybeRespond(context.Background(), d)
	})

	orchestrator := services.NewOrchestrator(st, debateService)
	matchmakingService := services.NewMatchmakingService(st, orchestrator, notifier, monitor, services.MatchmakingConfig{
		RatingWindow:      cfg.RatingWindow,
		PollInterval:      cfg.MatchPollInterval,
		ClaimWaitAttempts: cfg.ClaimWaitAttempts,
		ClaimWaitInterval: cfg.ClaimWaitInterval,
		StaleAfter:        cfg.QueueStaleAfter,
	})
	challengeService := services.NewChallengeService(st, orchestrator, notifier, monitor, cfg.ChallengeTTL)
	presenceService := services.NewPresenceService(redisClient)

	// Initialize handlers
	matchmakingHandler := handlers.NewMatchmakingHandler(app, matchmakingService)
	debateHandler := handlers.NewDebateHandler(app, debateService, orchestrator, presenceService)
	leaderboardHandler := handlers.NewLeaderboardHandler(app, leaderboardService)
	challengeHandler := handlers.NewChallengeHandler(app, challengeService)
	adminHandler := handlers.NewAdminHandler(st, matchmakingService)

	limiter := security.NewRateLimiter(redisClient)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Start background tasks
	debateService.Start()
	go sweepPeriodically(ctx, matchmakingService, challengeService, cfg.SweepInterval)

	if cfg.EnableMetrics {
		go serveMetrics(cfg.MetricsPort)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel, debateService)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		rebuildLeaderboard(app, redisClient)
		go recoverDeadlines(orchestrator)

		// Matchmaking endpoints
		e.Router.POST("/api/v1/matchmaking/join", limiter.Limit("mm-join", 10, time.Minute, matchmakingHandler.Join))
		e.Router.POST("/api/v1/matchmaking/search", limiter.Limit("mm-search", 10, time.Minute, matchmakingHandler.Search))
		e.Router.DELETE("/api/v1/matchmaking/{queueId}", matchmakingHandler.Leave)

		// Debate endpoints
		e.Router.POST("/api/v1/debates", limiter.Limit("debate-create", 20, time.Minute, debateHandler.CreateOpen))
		e.Router.POST("/api/v1/debates/practice", limiter.Limit("debate-create", 20, time.Minute, debateHandler.CreatePractice))
		e.Router.GET("/api/v1/debates/{debateId}", debateHandler.Get)
		e.Router.POST("/api/v1/debates/{debateId}/join", debateHandler.Join)
		e.Router.POST("/api/v1/debates/{debateId}/arguments", limiter.Limit("debate-submit", 30, time.Minute, debateHandler.Submit))
		e.Router.POST("/api/v1/debates/{debateId}/end", debateHandler.End)
		e.Router.POST("/api/v1/debates/{debateId}/leave", debateHandler.Leave)

		// Presence endpoints
		e.Router.POST("/api/v1/debates/{debateId}/heartbeat", debateHandler.Heartbeat)
		e.Router.POST("/api/v1/debates/{debateId}/typing", debateHandler.Typing)
		e.Router.GET("/api/v1/debates/{debateId}/presence", debateHandler.Presence)

		// Challenge endpoints
		e.Router.POST("/api/v1/challenges", limiter.Limit("challenge-create", 10, time.Minute, challengeHandler.Create))
		e.Router.GET("/api/v1/challenges", challengeHandler.Incoming)
		e.Router.POST("/api/v1/challenges/{challengeId}/accept", challengeHandler.Accept)
		e.Router.POST("/api/v1/challenges/{challengeId}/decline", challengeHandler.Decline)

		// Leaderboard endpoints
		e.Router.GET("/api/v1/leaderboard", leaderboardHandler.Top)
		e.Router.GET("/api/v1/leaderboard/me", leaderboardHandler.Me)
		e.Router.GET("/api/v1/users/{userId}/stats", leaderboardHandler.Stats)

		// Admin endpoints
		e.Router.GET("/api/v1/admin/queue-stats", adminHandler.QueueStats)
		e.Router.POST("/api/v1/admin/sweep-queue", adminHandler.SweepQueue)
		e.Router.GET("/api/v1/admin/active-debates", adminHandler.ActiveDebates)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// rebuildLeaderboard reseeds the Redis rating set from the settled stats
// so rankings survive a Redis flush or a fresh deployment.
func rebuildLeaderboard(app *pocketbase.PocketBase, redisClient *redis.Client) {
	ctx := context.Background()

	var records []dbx.NullStringMap
	if err := app.DB().NewQuery(
		"SELECT user_id, rating FROM user_debate_stats",
	).All(&records); err != nil {
		log.Printf("Error fetching user stats for leaderboard: %v", err)
		return
	}

	members := make([]redis.Z, 0, len(records))
	for _, record := range records {
		userID := record["user_id"].String
		if userID == "" {
			continue
		}
		rating, err := strconv.ParseFloat(record["rating"].String, 64)
		if err != nil {
			continue
		}
		members = append(members, redis.Z{Score: rating, Member: userID})
	}

	if len(members) > 0 {
		if err := redisClient.ZAdd(ctx, "leaderboard:rating", members...).Err(); err != nil {
			log.Printf("Error rebuilding leaderboard: %v", err)
			return
		}
		log.Printf("Rebuilt leaderboard with %d entries", len(members))
	}
}

// recoverDeadlines re-registers turn deadlines for sessions that were
// active when the server went down.
func recoverDeadlines(orchestrator *services.Orchestrator) {
	ctx, cancelRecover := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelRecover()

	if err := orchestrator.RecoverDeadlines(ctx); err != nil {
		slog.Error("deadline recovery failed", "error", err)
		return
	}
	log.Println("Turn deadline recovery completed")
}

func sweepPeriodically(ctx context.Context, matchmaking *services.MatchmakingService, challenges *services.ChallengeService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := matchmaking.SweepStale(ctx)
			if err != nil {
				slog.Error("queue sweep failed", "error", err)
			} else if removed > 0 {
				slog.Info("swept stale queue entries", "removed", removed)
			}

			if _, err := challenges.SweepExpired(ctx); err != nil {
				slog.Error("challenge sweep failed", "error", err)
			}
		}
	}
}

func serveMetrics(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		slog.Error("metrics server stopped", "error", err)
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc, debates *services.DebateService) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	debates.Shutdown()
	cancel()
}
