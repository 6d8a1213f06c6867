package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"syncServer/backend/internal/auth"
	"syncServer/backend/internal/cache"
	"syncServer/backend/internal/collab"
	"syncServer/backend/internal/httpapi/handlers"
	"syncServer/backend/internal/httpapi/middleware"
	"syncServer/backend/internal/store"
	"syncServer/backend/internal/ws"
)

type SyncConfig struct {
	Running struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"running"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Batch struct {
		DelayMs int `mapstructure:"delayMs"`
	} `mapstructure:"batch"`
	Cache struct {
		TTLSeconds int `mapstructure:"ttlSeconds"`
	} `mapstructure:"cache"`
	Auth struct {
		Secret          string `mapstructure:"secret"`
		TokenTTLMinutes int    `mapstructure:"tokenTtlMinutes"`
	} `mapstructure:"auth"`
}

func initConfig() (*SyncConfig, error) {
	cfg := &SyncConfig{}
	v := viper.New()
	v.SetConfigName("syncConfig")
	v.SetConfigType("yaml")
	// 兼容从项目根目录或 backend 目录启动
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	cfg, err := initConfig()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err = rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	gormDB, err := store.InitMySQL(cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	docStore := store.NewDocumentStore(gormDB)
	if err := docStore.AutoMigrate(); err != nil {
		log.Fatalf("Failed to migrate documents table: %v", err)
	}

	// 历史快照、用户表走原生 database/sql
	db, err := sql.Open("mysql", cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	historyStore := store.NewHistoryStore(db)
	if err := historyStore.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to create snapshots table: %v", err)
	}
	if err := auth.EnsureUserSchema(context.Background(), db); err != nil {
		log.Fatalf("Failed to create users table: %v", err)
	}

	// === 初始化 Kafka Producer ===
	kafkaCfg := sarama.NewConfig()
	// SyncProducer 必须开启 Return.Successes
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		log.Fatalf("Failed to connect kafka: %v", err)
	}
	defer producer.Close()

	kafkaSem := collab.NewSemaphoreControl()
	commitSem := collab.NewSemaphoreControl()

	dispatcher := collab.NewKafkaDispatcher(
		producer,
		cfg.Kafka.Topic,
		kafkaSem,
		collab.KafkaDispatcherOptions{
			QueueSize:   10_000,
			Workers:     4,
			MaxRetry:    3,
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  1 * time.Second,
		},
	)

	docCache := cache.NewDocCache(time.Duration(cfg.Cache.TTLSeconds) * time.Second)
	defer docCache.Close()
	presence := cache.NewRedisPresence(rdb)
	hub := ws.NewHub(presence)

	engine := collab.NewEngine(docStore, docCache, historyStore, dispatcher, hub, collab.EngineOptions{
		BatchDelay: time.Duration(cfg.Batch.DelayMs) * time.Millisecond,
		Sem:        commitSem,
	})
	manager := ws.NewManager(hub, engine)

	tokens := auth.NewTokenService(cfg.Auth.Secret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)
	authHandler := auth.NewHandler(db, tokens)
	docHandler := handlers.NewDocumentHandler(docStore, historyStore, engine)
	presenceHandler := handlers.NewPresenceHandler(presence)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.POST("/auth/register", authHandler.Register)
	r.POST("/auth/login", authHandler.Login)

	docs := r.Group("/documents")
	docs.Use(middleware.AuthMiddleware(tokens))
	docs.POST("", docHandler.Create)
	docs.GET("", docHandler.List)
	docs.GET("/:id", docHandler.Get)
	docs.PUT("/:id", docHandler.Update)
	docs.DELETE("/:id", docHandler.Delete)
	docs.POST("/:id/share", docHandler.Share)
	docs.GET("/:id/history", docHandler.History)
	docs.GET("/:id/presence", presenceHandler.Presence)

	syncGroup := r.Group("/sync")
	syncGroup.Use(middleware.AuthMiddleware(tokens))
	syncGroup.GET("/ws", manager.WebSocketConnect)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Running.Port),
		Handler: r,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen failed: %v", err)
		}
	}()

	// 收到停机信号先排水：冲刷所有待提交批次，再关 HTTP
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("shutting down, draining pending batches")
	engine.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
}
