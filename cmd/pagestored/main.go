// pagestored boots the line-framed socket server in front of a pagestore
// Database directory.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/nainya/pagestore/internal/logger"
	"github.com/nainya/pagestore/internal/metrics"
	"github.com/nainya/pagestore/internal/socket"
	"github.com/nainya/pagestore/pkg/database"
	"github.com/nainya/pagestore/pkg/table"
)

var (
	port          = flag.Int("port", 50051, "The server port")
	dbDir         = flag.String("db", "pagestore-data", "Database directory path")
	immediateSync = flag.Bool("immediate-sync", false, "fsync after every mutating table operation")
	logLvl        = flag.String("log-level", "info", "debug, info, warn, or error")
)

func main() {
	flag.Parse()

	log.Printf("pagestore socket server v1.0.0")
	log.Printf("Database: %s", *dbDir)
	log.Printf("Port: %d", *port)

	appLogger := logger.NewLogger(logger.Config{Level: *logLvl, Pretty: true})
	appMetrics := metrics.NewMetrics()

	db, err := database.Connect(*dbDir, database.Options{
		TableOptions: table.Options{ImmediateSync: *immediateSync},
		Logger:       appLogger,
		Metrics:      appMetrics,
	})
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	srv := socket.NewServer(db, appLogger, appMetrics)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	shutdownDone := make(chan struct{})
	go func() {
		<-sigChan
		log.Println("Shutting down gracefully...")
		if err := srv.Close(); err != nil {
			log.Printf("error during shutdown: %v", err)
		}
		close(shutdownDone)
	}()

	appLogger.LogServerStart(*port, *dbDir)
	appLogger.LogServerReady(*port)
	log.Printf("Server listening on :%d", *port)
	log.Printf("Ready to accept connections...")

	if err := srv.Serve(lis); err != nil {
		log.Fatalf("Failed to serve: %v", err)
	}
	<-shutdownDone
	appLogger.LogServerShutdown()
}
