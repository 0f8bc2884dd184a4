package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/go-account-link/internal/application/binding"
	"github.com/go-account-link/internal/application/operator"
	"github.com/go-account-link/internal/application/verification"
	"github.com/go-account-link/internal/config"
	"github.com/go-account-link/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-account-link/internal/infrastructure/jwt"
	"github.com/go-account-link/internal/infrastructure/presence"
	"github.com/go-account-link/internal/infrastructure/sns"
	transporthttp "github.com/go-account-link/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	// JWT provider (optional — graceful fallback if keys are missing).
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		log.Printf("WARN: JWT provider not available: %v", err)
	}

	// Bot relay publisher (optional — graceful fallback).
	var botSender sns.BotSender
	if cfg.SNSTopicARN != "" {
		if sender, err := sns.NewSender(cfg); err == nil {
			botSender = sender
		} else {
			log.Printf("WARN: SNS bot sender not available: %v", err)
		}
	}

	bindingRepo := dynamo.NewBindingRepo(dynamoClient, cfg.DynamoTables.Bindings)
	auditRepo := dynamo.NewAuditRepo(dynamoClient, cfg.DynamoTables.AuditLog)
	registry := binding.NewRegistry(bindingRepo, auditRepo)

	requests := verification.NewStore()
	janitor := verification.NewJanitor(requests, cfg.JanitorInterval)
	janitor.Start(context.Background())
	defer janitor.Stop()

	sessions := presence.NewRegistry()
	coordinator := binding.NewCoordinator(registry, requests, janitor, sessions, botSender, cfg.CodeLength, cfg.CodeTTL)

	var operatorSvc *operator.Service
	if jwtProvider != nil && cfg.OperatorPasswordHash != "" {
		operatorSvc = operator.NewService(cfg, jwtProvider)
	}

	deps := &transporthttp.Deps{
		Coordinator: coordinator,
		AuditRepo:   auditRepo,
		OperatorSvc: operatorSvc,
		JWTProvider: jwtProvider,
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
