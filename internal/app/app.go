// Package app wires configuration into the stores, clients and services
// shared by the API server and the worker.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"PdfVault/config"
	"PdfVault/internal/fetch"
	"PdfVault/internal/handler"
	"PdfVault/internal/mq"
	"PdfVault/internal/repo"
	"PdfVault/internal/service"
	"PdfVault/internal/storage"
	"PdfVault/internal/task"
	"PdfVault/utils"
)

const (
	lockPrefix = "pdfvault:run:"
	lockTTL    = 30 * time.Second
)

// App holds the long-lived dependencies of a process.
type App struct {
	Config  config.Config
	DB      *gorm.DB
	Tasks   *repo.TaskRepo
	Reports *repo.ReportRepo
	Store   storage.Store
	Runner  *task.Runner

	redis     *redis.Client
	publisher *mq.Publisher
}

// New connects the configured backends and builds the run service. base
// carries caller options such as OnProgress; the rest is filled from cfg.
func New(ctx context.Context, cfg config.Config, base task.Options) (*App, error) {
	db, err := repo.OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{
		Config:  cfg,
		DB:      db,
		Tasks:   repo.NewTaskRepo(db),
		Reports: repo.NewReportRepo(db),
	}

	opts := base
	opts.SourceDir = cfg.SourceDir
	opts.Folder = cfg.DownloadFolder
	opts.Workers = cfg.DownloadWorkers
	opts.ProgressInterval = cfg.ProgressInterval

	if cfg.MirrorEnabled {
		store, err := storage.OpenMinio(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Store = store
		opts.Mirror = storage.NewMirror(store, cfg.BucketName)
		logger.WithField("bucket", cfg.BucketName).Info("mirroring downloads to object storage")
	}

	if cfg.RedisEnabled {
		rdb, err := repo.OpenRedis(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = rdb
		opts.Locker = repo.NewRedisLocker(rdb, lockPrefix, lockTTL)
	}

	mail := utils.MailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Pass:     cfg.SMTPPass,
		From:     cfg.SMTPFrom,
		TLS:      cfg.SMTPTLS,
		StartTLS: cfg.SMTPStartTLS,
	}
	if cfg.NotifyEmail != "" {
		if mail.Ready() {
			opts.Notifier = task.EmailNotifier{Mail: mail, To: []string{cfg.NotifyEmail}}
		} else {
			logger.Warn("NOTIFY_EMAIL is set but SMTP settings are incomplete, run summaries are not mailed")
		}
	}

	a.Runner = task.NewRunner(a.Tasks, a.Reports, NewFetcher(cfg), opts)
	return a, nil
}

// NewFetcher builds the report fetcher from cfg.
func NewFetcher(cfg config.Config) *fetch.Fetcher {
	var limiter *rate.Limiter
	if cfg.DownloadRate > 0 {
		burst := cfg.DownloadBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.DownloadRate), burst)
	}
	return fetch.New(fetch.Options{
		Timeout:          cfg.HTTPTimeout,
		AllowPrivate:     cfg.AllowPrivate,
		AllowedHosts:     cfg.AllowedHosts,
		MaxBytes:         cfg.MaxBytes,
		RequireExtension: cfg.RequirePDFExt,
		Limiter:          limiter,
	})
}

// UseQueue makes Start publish runs to RabbitMQ instead of processing them
// in this process.
func (a *App) UseQueue() {
	a.publisher = mq.NewPublisher(a.Config.RabbitMQURL)
	a.Runner.SetDispatcher(task.NewQueueDispatcher(a.publisher))
	logger.Info("runs are dispatched to the queue")
}

// Handler builds the HTTP handler over the app services.
func (a *App) Handler() *handler.Handler {
	return handler.New(
		a.Runner,
		service.NewReportService(a.Reports),
		service.NewArtifactService(a.Reports, a.Store, a.Config.BucketName),
	)
}

// Close releases every connection the app opened.
func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.WithError(err).Warn("close redis failed")
		}
	}
	if a.DB != nil {
		if err := repo.CloseDB(a.DB); err != nil {
			logger.WithError(err).Warn("close database failed")
		}
	}
}

// Describe summarizes the effective setup for the startup log.
func (a *App) Describe() string {
	return fmt.Sprintf("db=%s mode=%s workers=%d folder=%s mirror=%t lock=%t",
		a.Config.DBDriver, a.Config.RunMode, a.Config.DownloadWorkers, a.Config.DownloadFolder,
		a.Config.MirrorEnabled, a.redis != nil)
}
