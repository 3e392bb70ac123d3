package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/swaggo/swag" // 导入 swag

	"personality_engine/config"
	"personality_engine/db"
	_ "personality_engine/docs" // 导入 swagger 文档
	"personality_engine/handlers"
	"personality_engine/logger"
	"personality_engine/repository"
	"personality_engine/scheduler"
	"personality_engine/services"
)

func main() {
	cfg := config.Load()

	// 初始化日志系统
	if err := logger.Init(cfg); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	logger.Info("日志系统初始化成功", "level", cfg.Log.Level, "format", cfg.Log.Format, "output", cfg.Log.Output)

	if err := db.InitMySQLWithConfig(cfg); err != nil {
		logger.Error("初始化MySQL失败", "error", err)
		os.Exit(1)
	}
	logger.Info("MySQL连接成功",
		"max_open_conns", cfg.DB.MaxOpenConns,
		"max_idle_conns", cfg.DB.MaxIdleConns,
		"conn_max_lifetime", cfg.DB.ConnMaxLifetime)

	if err := repository.InitTables(); err != nil {
		logger.Error("初始化数据表失败", "error", err)
		os.Exit(1)
	}

	// 组装引擎：事件存储、分数存储、行为分析器均显式构造注入
	eventRepo := repository.NewEventRepository()
	scoreRepo := repository.NewScoreRepository()
	analyzer := services.NewLLMAnalyzer(cfg)
	scoreService := services.NewScoreService(cfg, eventRepo, scoreRepo, analyzer)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	handlers.RegisterRoutes(r, cfg, scoreService, scoreRepo)

	// start cron
	scheduler.Start(cfg, scoreService)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("服务器启动", "address", serverAddr)
	logger.Info("Swagger文档可访问", "url", fmt.Sprintf("http://%s/swagger/index.html", serverAddr))
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%d", cfg.Server.Port), r))
}
