package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tbxark/formchat/config"
	"github.com/tbxark/formchat/document"
	"github.com/tbxark/formchat/formgen"
	"github.com/tbxark/formchat/llm"
	"github.com/tbxark/formchat/server"
	"github.com/tbxark/formchat/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session API over HTTP",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sessions, docs, closeStore, err := openStores()
	if err != nil {
		return err
	}
	defer closeStore()

	cm, err := llm.New(ctx, conf)
	if err != nil {
		return err
	}
	eng := newEngine(cm, docs)
	forms, err := formgen.New(cm)
	if err != nil {
		return err
	}
	h := server.NewHandler(eng, sessions, server.WithDocuments(docs), server.WithFormGenerator(forms))
	e := server.NewServer(h)

	go func() {
		slog.Info("formchat listening", "addr", conf.Listen, "store", conf.Store, "model", conf.Model)
		if err := e.Start(conf.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// openStores returns the session and document stores selected by the
// configuration. The memory store keeps nothing across restarts.
func openStores() (store.SessionStore, server.DocumentStore, func() error, error) {
	if conf.Store == config.StoreMemory {
		return store.NewMemoryStore(), document.NewMemoryProvider(), func() error { return nil }, nil
	}
	db, err := store.NewSQLiteStore(conf.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	slog.Debug("sqlite store opened", "database", conf.Database)
	return db, db, db.Close, nil
}
