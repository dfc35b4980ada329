package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"arbiter/internal/common/cache"
	"arbiter/internal/common/db"
	commonmw "arbiter/internal/common/http/middleware"
	"arbiter/internal/common/mq"
	"arbiter/internal/common/realtime"
	"arbiter/internal/common/storage"
	"arbiter/internal/contest/controller"
	"arbiter/internal/contest/model"
	"arbiter/internal/contest/repository"
	"arbiter/internal/contest/scheduler"
	contestsvc "arbiter/internal/contest/service"
	"arbiter/internal/fanout"
	judgesvc "arbiter/internal/judge/service"
	"arbiter/internal/leaderboard"
	"arbiter/pkg/utils/logger"
)

const defaultConfigPath = "configs/contest_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		logger.Error(context.Background(), "init minio failed", zap.Error(err))
		return
	}

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
	if err != nil {
		logger.Error(context.Background(), "init kafka failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mqClient.Close()
	}()

	submissionStore := repository.NewSubmissionStore(mysqlDB, redisCache)
	contestStore := repository.NewContestStore(mysqlDB, redisCache)
	snapshotStore := repository.NewSnapshotStore(redisCache)

	transport, err := realtime.NewRedisTransport(redisCache.Client())
	if err != nil {
		logger.Error(context.Background(), "init realtime transport failed", zap.Error(err))
		return
	}
	dispatcher, err := fanout.NewDispatcher(transport)
	if err != nil {
		logger.Error(context.Background(), "init dispatcher failed", zap.Error(err))
		return
	}

	boardSvc, err := leaderboard.NewService(leaderboard.Config{
		Contests:    contestStore,
		Submissions: submissionStore,
		Snapshots:   snapshotStore,
	})
	if err != nil {
		logger.Error(context.Background(), "init leaderboard service failed", zap.Error(err))
		return
	}

	projectionSvc, err := contestsvc.NewProjectionService(contestStore, submissionStore, boardSvc, dispatcher)
	if err != nil {
		logger.Error(context.Background(), "init projection service failed", zap.Error(err))
		return
	}

	// The trigger fires back into the contest service, so it closes over the
	// variable and the service gets the trigger through its config.
	var contestSvc *contestsvc.ContestService
	freezeTrigger, err := scheduler.NewFreezeTrigger(func(ctx context.Context, contestID int64) {
		if _, err := contestSvc.Freeze(ctx, contestID); err != nil {
			logger.Error(ctx, "auto freeze failed", zap.Int64("contest_id", contestID), zap.Error(err))
		}
	})
	if err != nil {
		logger.Error(context.Background(), "init freeze trigger failed", zap.Error(err))
		return
	}
	defer freezeTrigger.Stop()

	contestSvc, err = contestsvc.NewContestService(contestsvc.Config{
		Contests:  contestStore,
		Snapshots: snapshotStore,
		Trigger:   freezeTrigger,
		OnFrozen: func(ctx context.Context, contestID int64, frozen bool) {
			if err := projectionSvc.RefreshLeaderboard(ctx, contestID); err != nil {
				logger.Warn(ctx, "refresh leaderboard after freeze change failed",
					zap.Int64("contest_id", contestID), zap.Error(err))
			}
		},
	})
	if err != nil {
		logger.Error(context.Background(), "init contest service failed", zap.Error(err))
		return
	}
	if err := contestSvc.ResumeAutoFreeze(context.Background()); err != nil {
		logger.Warn(context.Background(), "resume pending auto freezes failed", zap.Error(err))
	}

	judgeSvc, err := judgesvc.NewService(judgesvc.Config{
		Submissions: submissionStore,
		Contests:    contestStore,
		Queue:       mqClient,
	})
	if err != nil {
		logger.Error(context.Background(), "init judge service failed", zap.Error(err))
		return
	}

	submissionSvc, err := contestsvc.NewSubmissionService(submissionStore, judgeSvc, objStorage, appCfg.Buckets.Source)
	if err != nil {
		logger.Error(context.Background(), "init submission service failed", zap.Error(err))
		return
	}

	err = mqClient.Subscribe(context.Background(), model.TopicSubmissionUpdated, projectionSvc.HandleSubmissionUpdated, &mq.SubscribeOptions{
		ConsumerGroup: appCfg.Kafka.ConsumerGroup,
		Concurrency:   appCfg.Kafka.Concurrency,
		MaxRetries:    appCfg.Kafka.MaxRetries,
		RetryDelay:    appCfg.Kafka.RetryDelay,
	})
	if err != nil {
		logger.Error(context.Background(), "subscribe kafka failed", zap.Error(err))
		return
	}
	if err := mqClient.Start(); err != nil {
		logger.Error(context.Background(), "start kafka consumer failed", zap.Error(err))
		return
	}

	contestController := controller.NewContestController(submissionSvc, contestSvc, judgeSvc, boardSvc, projectionSvc)
	httpServer := buildHTTPServer(appCfg, contestController)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "contest http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	_ = mqClient.Stop()
}

func buildHTTPServer(cfg *AppConfig, contestController *controller.ContestController) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	api := router.Group("/api/v1")
	api.POST("/contests/:contestID/submissions", contestController.Submit)
	api.GET("/submissions/:submissionID", contestController.GetSubmission)
	api.GET("/contests/:contestID/leaderboard", contestController.GetLeaderboard)

	staff := api.Group("", commonmw.ServiceAuthMiddleware(cfg.Auth.ServiceSecret))
	staff.POST("/contests/:contestID/submissions/:submissionID/rerun", contestController.Rerun)
	staff.PUT("/contests/:contestID/submissions/:submissionID/answer", contestController.ForceAnswer)
	staff.POST("/contests/:contestID/freeze", contestController.Freeze)
	staff.POST("/contests/:contestID/unfreeze", contestController.Unfreeze)
	staff.POST("/contests/:contestID/auto-freeze", contestController.ArmAutoFreeze)
	staff.GET("/contests/:contestID/leaderboard/staff", contestController.GetStaffLeaderboard)

	internal := router.Group("/internal/v1", commonmw.ServiceAuthMiddleware(cfg.Auth.ServiceSecret))
	internal.POST("/contests/:contestID/submissions/:submissionID/verdict", contestController.ReportVerdict)

	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
