package main

import (
	"fmt"

	_ "github.com/GregulasM/Task-Manager-SaaS-FullMaster/docs" // Required for Swagger
	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/api"
	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/config"
	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/ratelimit"
	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// @title           FullMaster API
// @version         1.0
// @description     Project management API: users, projects, invitations, kanban board

// @BasePath  /

// @securityDefinitions.apikey  CookieAuth
// @in                         cookie
// @name                       fm_token
func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create database configuration
	dbConfig := storage.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
	}

	// Create database if it doesn't exist
	rootDb, err := storage.NewDB(storage.Config{
		Host:     dbConfig.Host,
		Port:     dbConfig.Port,
		User:     dbConfig.User,
		Password: dbConfig.Password,
		DBName:   "",
	})
	if err != nil {
		log.Fatalf("Failed to connect to MySQL: %v", err)
	}

	if _, err := rootDb.Exec("CREATE DATABASE IF NOT EXISTS " + dbConfig.DBName); err != nil {
		log.Fatalf("Failed to create database: %v", err)
	}
	rootDb.Close()

	// Connect to the application database
	db, err := storage.NewDB(dbConfig)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := storage.RunMigrations(db, "migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	rateLimiter, err := ratelimit.NewRateLimiter(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Failed to initialize rate limiter: %v", err)
	}
	defer rateLimiter.Close()

	// Set up and start the server
	router := api.SetupRouter(db, cfg, rateLimiter, log)

	serverAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	if cfg.Env == "development" {
		log.Infof("Server starting on http://localhost%s", serverAddr)
		log.Infof("Swagger UI available at http://localhost%s/swagger/index.html", serverAddr)
	}

	if err := router.Run(serverAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
