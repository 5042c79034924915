package main

import (
	"PdfVault/config"
	"PdfVault/internal/app"
	"PdfVault/internal/task"
	"PdfVault/router"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	logger "github.com/sirupsen/logrus"
)

// main initializes services and starts the HTTP server.
func main() {
	config.InitConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, config.AppConfig, task.Options{})
	if err != nil {
		logger.WithError(err).Fatal("init failed")
	}
	defer a.Close()

	if a.Config.RunMode == config.RunModeQueue {
		a.UseQueue()
	}
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()
	a.Runner.SetBaseContext(runCtx)

	srv := &http.Server{
		Addr:              a.Config.HTTPAddr,
		Handler:           router.InitRouter(a.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.WithFields(logger.Fields{"addr": srv.Addr, "setup": a.Describe()}).Info("api server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("http server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown failed")
	}
	// in-process runs stop taking rows and flush their counters
	cancelRuns()
	a.Runner.Wait()
}
