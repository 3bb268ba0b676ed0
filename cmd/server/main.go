// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"pai-docqa-go/internal/app"
	"pai-docqa-go/internal/config"
	"pai-docqa-go/internal/inbox"
	"pai-docqa-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", envOr("DOCQA_CONFIG", "./configs/config.yaml"), "配置文件路径")
	flag.Parse()

	// 0. 加载 .env（不存在时忽略）
	_ = godotenv.Load()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 装配存储、队列、检索和服务
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	application, err := app.New(rootCtx, cfg, app.Options{})
	if err != nil {
		log.Fatal("应用初始化失败", err)
	}

	// 4. 启动后台摄取 worker
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := application.Worker.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("摄取 worker 异常退出", err)
		}
	}()

	// 5. 导入 inbox 目录，按需持续监听
	inboxCtx, stopInbox := context.WithCancel(rootCtx)
	defer stopInbox()
	importer := inbox.New(cfg.Inbox.Dir, application.Documents)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := importer.ImportAll(inboxCtx); err != nil {
			log.Warnf("inbox 初始化导入失败: %v", err)
		}
		if !cfg.Inbox.Watch {
			return
		}
		if err := importer.Watch(inboxCtx); err != nil {
			log.Warnf("inbox 监听失败: %v", err)
		}
	}()

	// 6. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: application.Router(),
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止导入和接收新任务，给 worker 一段时间处理完队列中的任务
	stopInbox()
	wg.Wait()
	if err := application.Queue.Close(); err != nil {
		log.Errorf("关闭队列失败: %v", err)
	}
	select {
	case <-workerDone:
	case <-time.After(30 * time.Second):
		log.Warnf("等待 worker 超时，放弃未处理的任务")
		cancel()
		<-workerDone
	}
	if err := application.Close(); err != nil {
		log.Errorf("释放资源失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
