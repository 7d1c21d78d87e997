/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (config.yml, .env, environment, flags)
  2. Open the store selected by STORE_DRIVER (memory, sqlite, mongo)
  3. Build the journal, notifier and leave service
  4. Start the monthly credit scheduler
  5. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Configuration file (default: config.yml)
  -port    HTTP server port, overrides APP_PORT
  -db      SQLite database path, overrides SQLITE_PATH
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the credit scheduler (waits for a run in progress)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the store
  5. Exit

SEE ALSO:
  - config/config.go: Settings and their environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/generic"
	genstore "github.com/warp/leave-engine/generic/store"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/store/mongo"
	"github.com/warp/leave-engine/store/sqlite"
)

// backend bundles the stores one driver provides.
type backend struct {
	employees    leave.EmployeeStore
	applications leave.ApplicationStore
	policies     leave.PolicyStore
	audit        leave.AuditStore
	journal      generic.JournalStore
	close        func(context.Context) error
}

func main() {
	// Flags
	configFile := flag.String("config", "config.yml", "Configuration file")
	port := flag.Int("port", 0, "HTTP server port (overrides APP_PORT)")
	dbPath := flag.String("db", "", "SQLite database path (overrides SQLITE_PATH)")
	flag.Parse()

	conf, err := config.Load(*configFile)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	if *port > 0 {
		conf.App.Port = *port
	}
	if *dbPath != "" {
		conf.Sqlite.Path = *dbPath
	}

	log := config.NewLogger(conf.Log.Level)

	// Initialize store
	b, err := openBackend(conf, log)
	if err != nil {
		log.WithError(err).WithField("driver", conf.Store.Driver).Fatal("failed to initialize store")
	}

	svc := leave.NewService(leave.Config{
		Employees:    b.employees,
		Applications: b.applications,
		Policies:     b.policies,
		Audit:        b.audit,
		Journal:      generic.NewJournal(b.journal),
		Notifier: notify.NewEmailNotifier(notify.Config{
			Host:       conf.Smtp.Host,
			Port:       conf.Smtp.Port,
			User:       conf.Smtp.User,
			Password:   conf.Smtp.Password,
			From:       conf.Smtp.From,
			TLSEnabled: conf.SmtpTLS(),
		}, log),
		Logger: log,
	})

	// Credit scheduler
	var scheduler *api.CreditScheduler
	if conf.CreditEnabled() {
		scheduler, err = api.NewCreditScheduler(svc, conf.Credit.Rule, log)
		if err != nil {
			log.WithError(err).Fatal("invalid credit schedule")
		}
		scheduler.Start()
		log.WithField("next_run", scheduler.NextRunTime()).Info("monthly credit scheduled")
	}

	handler := api.NewHandler(svc, scheduler, log)
	router := api.NewRouter(handler, conf.Origins())

	server := &http.Server{
		Addr:         conf.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{"addr": server.Addr, "driver": conf.Store.Driver}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	if err := b.close(ctx); err != nil {
		log.WithError(err).Error("failed to close store")
	}
	log.Info("server stopped")
}

func openBackend(conf *config.Configuration, log logrus.FieldLogger) (*backend, error) {
	switch conf.Store.Driver {
	case "memory":
		log.Warn("using the in-memory store, data is lost on restart")
		s := memory.New()
		return &backend{
			employees: s, applications: s, policies: s, audit: s,
			journal: genstore.NewMemory(),
			close:   func(context.Context) error { return nil },
		}, nil

	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), conf.MongoTimeout())
		defer cancel()
		s, err := mongo.Connect(ctx, conf.Mongo.URI, conf.Mongo.Database, conf.MongoTimeout())
		if err != nil {
			return nil, err
		}
		return &backend{
			employees: s, applications: s, policies: s, audit: s, journal: s,
			close: s.Close,
		}, nil

	default:
		s, err := sqlite.New(conf.Sqlite.Path)
		if err != nil {
			return nil, err
		}
		return &backend{
			employees: s, applications: s, policies: s, audit: s, journal: s,
			close: func(context.Context) error { return s.Close() },
		}, nil
	}
}
