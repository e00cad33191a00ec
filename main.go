package main

import (
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"teachprep-server-go/ai"
	"teachprep-server-go/analyzer"
	"teachprep-server-go/config"
	"teachprep-server-go/db"
	"teachprep-server-go/handlers"
	"teachprep-server-go/logger"
	"teachprep-server-go/metrics"
	"teachprep-server-go/planner"
	"teachprep-server-go/search"
)

func main() {
	// 先用开发模式日志完成启动，配置加载后再按 DEBUG 重建
	log, err := logger.New("development")
	if err != nil {
		os.Exit(1)
	}

	cfg, err := config.Load(log)
	if err != nil {
		log.Fatal("配置加载失败", "error", err)
	}
	log, err = logger.New(cfg.LogMode())
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	m := metrics.New()

	// 意图缓存：配置了 Redis 就用 Redis，否则退回进程内缓存
	var cache db.Cache = db.NewMemoryCache()
	if cfg.RedisAddr != "" {
		redisClient, err := db.InitializeRedisClient(cfg)
		if err != nil {
			log.Warn("Redis 连接失败，使用进程内缓存", "addr", cfg.RedisAddr, "error", err)
		} else {
			cache = db.NewRedisCache(redisClient, log)
			log.Info("Redis 缓存已启用", "addr", cfg.RedisAddr)
		}
	}
	cache = db.NewInstrumentedCache(cache, m.IntentCacheHit)

	store := db.NewProfileStore(cfg.ProfilesPath, log)

	rules := analyzer.DefaultRules()
	if cfg.AnalysisConfigPath != "" {
		rules, err = analyzer.LoadRules(cfg.AnalysisConfigPath)
		if err != nil {
			log.Fatal("分析规则加载失败", "path", cfg.AnalysisConfigPath, "error", err)
		}
	}
	analyzerService := analyzer.NewService(rules, log)

	aiClient, err := ai.NewClient(cfg, log)
	if err != nil {
		log.Fatal("AI 客户端初始化失败", "error", err)
	}
	instrumentedAI := ai.NewInstrumentedClient(aiClient, m.LLMCall)

	searchClient := search.NewClient(cfg.SearchBaseURL, log)
	plannerService := planner.NewService(instrumentedAI, store, cache, searchClient, cfg.CacheTTL, log)

	planHandler := handlers.NewPlanHandler(plannerService, m, log)
	classDataHandler := handlers.NewClassDataHandler(analyzerService, store, instrumentedAI, cfg.ClassDataDir, m, log)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:   []string{"X-Need-More-Info", "X-Collected-Params", "X-Request-ID"},
	}))
	r.Use(handlers.RequestID())

	api := r.Group("/api")
	{
		api.GET("/ping", handlers.Ping)
		api.GET("/metrics", handlers.MetricsHandler(m))

		teacher := api.Group("/teacher")
		{
			teacher.POST("/plan", planHandler.GeneratePlan)
			teacher.POST("/plan/stream", planHandler.GeneratePlanStream)
		}

		classData := api.Group("/class_data")
		{
			classData.POST("/upload", classDataHandler.Upload)
			classData.POST("/upload_stream", classDataHandler.UploadStream)
			classData.POST("/analyze/:filename", classDataHandler.AnalyzeFile)
			classData.POST("/batch_analyze", classDataHandler.BatchAnalyze)
			classData.GET("/profiles", classDataHandler.Profiles)
			classData.DELETE("/profile/:class_name", classDataHandler.DeleteProfile)
			classData.GET("/download/:class_name", classDataHandler.Download)
		}
	}

	log.Info("备课助手服务启动", "addr", cfg.Addr(), "model", aiClient.Model())
	if err := r.Run(cfg.Addr()); err != nil {
		log.Fatal("服务启动失败", "error", err)
	}
}
