package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ballots "github.com/jicksta/case-ballots"
	"github.com/jicksta/case-ballots/config"
	"github.com/jicksta/case-ballots/rest"
)

const shutdownTimeout = 5 * time.Second

// serve runs the HTTP API until SIGINT or SIGTERM.
func serve(cfg *config.Config, store ballots.RecordStore, host ballots.CodeHost) error {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: rest.NewRouter(store, host),
	}

	errs := make(chan error, 1)
	go func() {
		log.Printf("ballots API listening on %s (backend %s)", cfg.HTTPAddr, cfg.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errs:
		if ok {
			return err
		}
		return nil
	case <-quit:
	}
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	log.Println("Server exiting")
	return nil
}
