package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"arbiter/internal/common/cache"
	"arbiter/internal/common/db"
	"arbiter/internal/common/mq"
	"arbiter/internal/common/storage"
	"arbiter/internal/contest/model"
	"arbiter/internal/contest/repository"
	"arbiter/internal/judge/apiclient"
	"arbiter/internal/judge/sandbox"
	judgesvc "arbiter/internal/judge/service"
	"arbiter/pkg/utils/logger"
)

const defaultConfigPath = "configs/judge_worker.yaml"

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

	if err := os.MkdirAll(appCfg.Judge.WorkRoot, 0o755); err != nil {
		logger.Error(context.Background(), "init work root failed",
			zap.String("work_root", appCfg.Judge.WorkRoot), zap.Error(err))
		return
	}

	executor := sandbox.NewProcessExecutor(sandbox.WithCompileTimeout(appCfg.Judge.CompileTimeout))
	worker, err := sandbox.NewWorker(executor, sandbox.NewRegistry(appCfg.Languages))
	if err != nil {
		logger.Error(context.Background(), "init sandbox worker failed", zap.Error(err))
		return
	}

	var reporter judgesvc.VerdictReporter
	if appCfg.Report.BaseURL != "" {
		client, err := apiclient.New(appCfg.Report)
		if err != nil {
			logger.Error(context.Background(), "init report client failed", zap.Error(err))
			return
		}
		reporter = client
	}

	judgeSvc, err := judgesvc.NewService(judgesvc.Config{
		Submissions:    repository.NewSubmissionStore(mysqlDB, redisCache),
		Problems:       repository.NewProblemStore(mysqlDB),
		Contests:       repository.NewContestStore(mysqlDB, redisCache),
		Queue:          mqClient,
		Worker:         worker,
		Storage:        objStorage,
		Reporter:       reporter,
		SourceBucket:   appCfg.Buckets.Source,
		TestDataBucket: appCfg.Buckets.TestData,
		ArtifactBucket: appCfg.Buckets.Artifacts,
		WorkRoot:       appCfg.Judge.WorkRoot,
	})
	if err != nil {
		logger.Error(context.Background(), "init judge service failed", zap.Error(err))
		return
	}

	err = mqClient.Subscribe(context.Background(), model.TopicSubmissionQueued, judgeSvc.HandleMessage, &mq.SubscribeOptions{
		ConsumerGroup:   appCfg.Kafka.ConsumerGroup,
		Concurrency:     appCfg.Kafka.Concurrency,
		MaxRetries:      appCfg.Kafka.MaxRetries,
		RetryDelay:      appCfg.Kafka.RetryDelay,
		DeadLetterTopic: model.TopicSubmissionDeadLetter,
	})
	if err != nil {
		logger.Error(context.Background(), "subscribe queued topic failed", zap.Error(err))
		return
	}
	err = mqClient.Subscribe(context.Background(), model.TopicSubmissionDeadLetter, judgeSvc.HandleDeadLetter, &mq.SubscribeOptions{
		ConsumerGroup: appCfg.Kafka.ConsumerGroup,
		Concurrency:   1,
		MaxRetries:    appCfg.Kafka.MaxRetries,
		RetryDelay:    appCfg.Kafka.RetryDelay,
	})
	if err != nil {
		logger.Error(context.Background(), "subscribe dead letter topic failed", zap.Error(err))
		return
	}

	if err := mqClient.Start(); err != nil {
		logger.Error(context.Background(), "start kafka consumer failed", zap.Error(err))
		return
	}
	logger.Info(context.Background(), "judge worker started",
		zap.String("work_root", appCfg.Judge.WorkRoot),
		zap.Int("languages", len(appCfg.Languages)))

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-shutdownCtx.Done()
	logger.Info(context.Background(), "shutdown signal received")

	stopped := make(chan struct{})
	go func() {
		_ = mqClient.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(defaultShutdownTimeout):
		logger.Warn(context.Background(), "consumer stop timed out")
	}
}
