// Command eventbroker wires the engine's components together and runs the
// bootstrap sequence against a file-backed store, the way main.go in the
// teacher repo wires persistence.NewPersistence over a fresh sqlite file.
package main

import (
	"fmt"
	"log"
	"path/filepath"

	"go.uber.org/zap"

	events "github.com/asaidimu/go-events"
	"github.com/kavelabs/eventbroker/core/consumer"
	"github.com/kavelabs/eventbroker/core/dispatch"
	"github.com/kavelabs/eventbroker/core/eventstore"
	"github.com/kavelabs/eventbroker/core/publish"
	"github.com/kavelabs/eventbroker/core/schema"
	"github.com/kavelabs/eventbroker/core/topic"
	"github.com/kavelabs/eventbroker/core/topicstore"
	"github.com/kavelabs/eventbroker/internal/config"
	"github.com/kavelabs/eventbroker/management"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fmt.Printf("Loaded configuration: dataDir=%s configDir=%s port=%d\n", cfg.DataDir, cfg.ConfigDir, cfg.Port)

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	store := topicstore.New(cfg.ConfigDir, logger)
	registry := schema.NewRegistry(logger)
	topics := topic.New(store, registry, logger)

	events_ := eventstore.New(cfg.DataDir, logger)

	consumerDBPath := filepath.Join(cfg.DataDir, "consumers.db")
	consumers, err := consumer.Open(consumerDBPath, logger)
	if err != nil {
		log.Fatalf("Failed to open consumer registry at %s: %v", consumerDBPath, err)
	}
	defer func() {
		if cErr := consumers.Close(); cErr != nil {
			log.Printf("Error closing consumer registry: %v", cErr)
		}
		fmt.Println("Consumer registry closed.")
	}()

	bus, err := events.NewTypedEventBus[dispatch.PublishedEvent](events.DefaultConfig())
	if err != nil {
		log.Fatalf("Failed to build event bus: %v", err)
	}

	manager := dispatch.NewManager(events_, consumers, logger, bus)
	defer manager.StopAllDispatchers()

	publisher := publish.New(topics, events_, manager, logger)

	projections := management.NewProjections()
	bootstrap := management.NewBootstrap(topics, events_, publisher, consumers, manager, projections, logger)
	bootstrap.AdminEmail = cfg.SystemAdminEmail
	bootstrap.AdminPassword = cfg.SystemAdminPassword
	if bootstrap.AdminEmail == "" {
		bootstrap.AdminEmail = management.DefaultAdminEmail
	}
	if bootstrap.AdminPassword == "" {
		bootstrap.AdminPassword = management.DefaultAdminPassword
	}

	if err := bootstrap.Run(); err != nil {
		log.Fatalf("Failed to bootstrap engine: %v", err)
	}
	fmt.Println("Bootstrap complete: system tenant, management namespace, and admin principal are ready.")

	authorizer := management.NewAuthorizer(projections, topics)
	admin, ok := projections.Users.ByEmail(bootstrap.AdminEmail)
	if ok {
		allowed, err := authorizer.CheckPermission(admin.ResourceID, management.ResourceTenant, topic.SystemTenant, management.PermissionAdmin, topic.SystemTenant, "", "")
		if err != nil {
			log.Fatalf("Failed to check admin permission: %v", err)
		}
		fmt.Printf("Admin %q has ADMIN permission on tenant %q: %v\n", bootstrap.AdminEmail, topic.SystemTenant, allowed)
	}

	fmt.Println("Engine is running. Publish to any topic via publish.Service.Publish; dispatchers deliver in the background.")
	select {}
}
