package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tobsdb/memdb"
	"github.com/tobsdb/memdb/internal/auth"
	"github.com/tobsdb/memdb/internal/config"
	"github.com/tobsdb/memdb/internal/conn"
	"github.com/tobsdb/memdb/pkg"
)

func main() {
	config_path := flag.String("config", "", "path to a config file")
	port := flag.Int("port", 0, "listening port")
	username := flag.String("u", "", "admin username")
	password := flag.String("p", "", "admin password")
	schema_path := flag.String("schema", "", "path to a $TABLE schema file")
	should_log := flag.Bool("log", true, "enable logging")
	debug := flag.Bool("dbg", false, "show debug logs")

	flag.Parse()

	cfg, err := config.Load(*config_path)
	if err != nil {
		pkg.FatalLog(err)
	}
	// flags that were set override the config
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "u":
			cfg.Username = *username
		case "p":
			cfg.Password = *password
		case "schema":
			cfg.Schema = *schema_path
		case "log":
			cfg.Log.Enabled = *should_log
		case "dbg":
			cfg.Log.Debug = *debug
		}
	})
	if err := cfg.Validate(); err != nil {
		pkg.FatalLog(err)
	}

	engine := memdb.New(memdb.Options{
		Log:            memdb.LogOptions{Should_log: cfg.Log.Enabled, Show_debug_logs: cfg.Log.Debug},
		MaxConcurrency: cfg.MaxConcurrency,
	})
	defer engine.Dispose()

	if len(cfg.Schema) > 0 {
		schema_data, err := os.ReadFile(cfg.Schema)
		if err != nil {
			pkg.FatalLog(err)
		}
		tables, err := engine.DefineSchema(string(schema_data))
		if err != nil {
			pkg.FatalLog(err)
		}
		pkg.InfoLog("defined", len(tables), "tables from", cfg.Schema)
	}

	users := auth.NewUsers()
	if _, err := users.Add(cfg.Username, cfg.Password, auth.UserRoleAdmin); err != nil {
		pkg.FatalLog(err)
	}

	Listen(engine, users, cfg.Port)
}

func Listen(engine *memdb.Engine, users *auth.Users, port int) {
	exit := make(chan os.Signal, 2)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(engine.Metrics().Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws", conn.NewServer(engine, users).HandleConnection)

	s := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		err := s.ListenAndServe()
		if err != http.ErrServerClosed {
			pkg.FatalLog(err)
		}
	}()

	pkg.InfoLog("memdb listening on port", port, "dialect", engine.Dialect())
	<-exit
	pkg.DebugLog("Shutting down...")
	s.Shutdown(context.Background())
}
