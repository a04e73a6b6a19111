package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/nbeier/meetscribe/internal/config"
	"github.com/nbeier/meetscribe/internal/logger"
	"github.com/nbeier/meetscribe/internal/scheduler"
	"github.com/nbeier/meetscribe/internal/svc"
	"github.com/nbeier/meetscribe/internal/watcher"
)

var configFile = flag.String("f", "etc/config.yaml", "the config file")

func main() {
	flag.Parse()

	c, err := config.LoadFromFile(*configFile)
	if err != nil {
		logger.Fatalf("failed to load config file, %s", err)
	}

	if _, err := os.Stat(c.Store.DataDir); os.IsNotExist(err) {
		if err := os.MkdirAll(c.Store.DataDir, 0755); err != nil {
			logger.Fatalf("failed to create data directory, %s", err)
		}
	}

	svcCtx := svc.NewServiceContext(c)

	schedulerInstance := scheduler.NewScheduler(svcCtx.MeetingModel, svcCtx.FileStore, &c.Store)
	if err := schedulerInstance.Start(); err != nil {
		logger.Fatalf("[Scheduler] failed to start scheduler: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var watcherInstance *watcher.Watcher
	if c.Watcher.Enable {
		watcherInstance, err = watcher.New(c.Watcher.InboxDir, svcCtx.FileStore, svcCtx.Pipeline)
		if err != nil {
			logger.Fatalf("[Watcher] failed to create watcher: %s", err)
		}
		go func() {
			if err := watcherInstance.Start(ctx); err != nil && err != context.Canceled {
				logger.Errorf("[Watcher] stopped with error: %v", err)
			}
		}()
	}

	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	logger.Infof("shutting down...")
	cancel()
	schedulerInstance.Stop()
	if watcherInstance != nil {
		if err := watcherInstance.Stop(); err != nil {
			logger.Infof("[Watcher] close failed, %v", err)
		}
	}
	svcCtx.Close()
	logger.Infof("service stopped")
}
