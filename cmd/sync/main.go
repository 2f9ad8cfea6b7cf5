package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"crm-bridge/internal/config"
	"crm-bridge/internal/database"
	"crm-bridge/internal/features/client"
	"crm-bridge/internal/features/espocrm"
	"crm-bridge/internal/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: sync [flags] [full|client-to-espocrm|espocrm-to-client]

Runs an EspoCRM synchronization from the command line.

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	clientID := flag.String("client-id", "", "local client id for client-to-espocrm sync")
	espocrmID := flag.String("espocrm-id", "", "EspoCRM account id for espocrm-to-client sync")
	async := flag.Bool("async", false, "queue the sync through the worker instead of running it inline")
	testConnection := flag.Bool("test-connection", false, "verify the EspoCRM connection and exit")
	stats := flag.Bool("stats", false, "print synchronization statistics and exit")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal(err)
	}
	defer mongoClient.Disconnect(context.Background())

	db := &database.MongodbDB{DB: mongoClient.Database(cfg.DBName)}

	zapLogger, err := logger.NewLogger(cfg, db)
	if err != nil {
		log.Fatal(err)
	}
	defer zapLogger.Sync()

	clientRepo := client.NewClientRepository(db)
	configRepo := espocrm.NewConfigRepository(db)
	logRepo := espocrm.NewSyncLogRepository(db)
	api := espocrm.NewApiClient(zapLogger)
	service := espocrm.NewService(configRepo, logRepo, clientRepo, api, zapLogger)

	switch {
	case *testConnection:
		user, err := service.TestConnection(ctx)
		if err != nil {
			log.Fatalf("connection test failed: %v", err)
		}
		fmt.Printf("Connected to EspoCRM as %v\n", user["userName"])
		return

	case *stats:
		s, err := service.SyncStats(ctx)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Total syncs:      %d\n", s.Total)
		fmt.Printf("Successful:       %d\n", s.Successful)
		fmt.Printf("Failed:           %d\n", s.Failed)
		fmt.Printf("Success rate:     %.2f%%\n", s.SuccessRate)
		if s.LastSuccessfulSync != nil {
			fmt.Printf("Last successful:  %s\n", s.LastSuccessfulSync.Format(time.RFC3339))
		}
		fmt.Printf("Config active:    %v\n", s.ConfigActive)
		return
	}

	msg, err := buildMessage(flag.Arg(0), *clientID, *espocrmID)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
		os.Exit(1)
	}

	if *async {
		handler := espocrm.NewMessageHandler(service, clientRepo, zapLogger)
		dispatcher := espocrm.NewDispatcher(cfg, handler, zapLogger)
		go dispatcher.Run()
		if err := dispatcher.Dispatch(ctx, msg); err != nil {
			log.Fatal(err)
		}
		if err := dispatcher.Stop(ctx); err != nil {
			log.Fatal(err)
		}
		fmt.Println("Sync processed through worker queue")
		return
	}

	if err := runInline(ctx, service, clientRepo, msg); err != nil {
		log.Fatal(err)
	}
}

func buildMessage(syncType, clientID, espocrmID string) (espocrm.SyncMessage, error) {
	switch syncType {
	case "full", "":
		return espocrm.ForFullSync(), nil
	case "client-to-espocrm":
		if clientID == "" {
			return espocrm.SyncMessage{}, fmt.Errorf("client-to-espocrm requires -client-id")
		}
		return espocrm.ForClientToEspoCrm(clientID), nil
	case "espocrm-to-client":
		if espocrmID == "" {
			return espocrm.SyncMessage{}, fmt.Errorf("espocrm-to-client requires -espocrm-id")
		}
		return espocrm.ForEspoCrmToClient(espocrmID), nil
	default:
		return espocrm.SyncMessage{}, fmt.Errorf("unknown sync type %q", syncType)
	}
}

func runInline(ctx context.Context, service espocrm.Service, clientRepo client.ClientRepository, msg espocrm.SyncMessage) error {
	switch msg.Type {
	case espocrm.MessageFullSync:
		stats, err := service.FullSync(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Full sync complete: %d pushed, %d pulled, %d errors\n",
			stats.SyncedToEspoCrm, stats.SyncedFromEspoCrm, stats.Errors)
		return nil

	case espocrm.MessageClientToEspoCrm:
		c, err := clientRepo.Get(ctx, msg.ClientID)
		if err != nil {
			return fmt.Errorf("client %s not found: %w", msg.ClientID, err)
		}
		if err := service.SyncClientToEspoCrm(ctx, c); err != nil {
			return err
		}
		fmt.Printf("Client %s synchronized to EspoCRM account %s\n", msg.ClientID, c.EspoCrmID)
		return nil

	case espocrm.MessageEspoCrmToClient:
		c, err := service.SyncClientFromEspoCrm(ctx, msg.EspoCrmID)
		if err != nil {
			return err
		}
		fmt.Printf("EspoCRM account %s synchronized to client %s\n", msg.EspoCrmID, c.ID.Hex())
		return nil

	default:
		return fmt.Errorf("unsupported sync type %q", msg.Type)
	}
}
