// Package app builds the collaborators shared by the server and worker
// binaries from configuration.
package app

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/outreach-scheduler/internal/archive"
	"github.com/unclebandit/outreach-scheduler/internal/composer"
	"github.com/unclebandit/outreach-scheduler/internal/config"
	"github.com/unclebandit/outreach-scheduler/internal/queue"
	"github.com/unclebandit/outreach-scheduler/internal/service"
	"github.com/unclebandit/outreach-scheduler/internal/timezone"
	"github.com/unclebandit/outreach-scheduler/internal/transport"
)

// JobQueue both schedules and delivers batch jobs.
type JobQueue interface {
	queue.ScheduledQueue
	queue.Consumer
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse REDIS_URL")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to ping redis")
	}
	return client, nil
}

// NewJobQueue picks the batch job queue. The memory queue only reaches
// consumers in the same process. The returned close func is never nil.
func NewJobQueue(cfg config.QueueConfig, amqpURL string, rdb redis.UniversalClient, mem *queue.InMemoryQueue) (JobQueue, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Provider {
	case "redis":
		if rdb == nil {
			return nil, noop, errors.New("redis queue requires a redis client")
		}
		q := queue.NewRedisQueue(rdb, "")
		q.PollInterval = cfg.PollInterval
		q.Lease = cfg.Lease
		q.Concurrency = cfg.Concurrency
		return q, noop, nil
	case "amqp":
		q, err := queue.DialAMQP(amqpURL)
		if err != nil {
			return nil, noop, err
		}
		q.Concurrency = cfg.Concurrency
		return q, q.Close, nil
	case "memory":
		if mem == nil {
			return nil, noop, errors.New("memory queue requires an in-process queue")
		}
		mem.Concurrency = cfg.Concurrency
		return mem, noop, nil
	}
	return nil, noop, errors.Errorf("unknown QUEUE_PROVIDER %q", cfg.Provider)
}

func NewComposer(cfg config.ComposerConfig) (composer.Composer, error) {
	template := cfg.Template
	if template == "" {
		template = composer.DefaultTemplate
	}

	switch cfg.Provider {
	case "template":
		return &composer.TemplateComposer{Template: template}, nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("COMPOSER_PROVIDER=openai requires OPENAI_API_KEY")
		}
		scraper := composer.NewPageScraper(cfg.BrowserlessAPIKey, cfg.ScrapeTimeout)
		return composer.NewAIComposer(cfg.OpenAIAPIKey, cfg.OpenAIModel, template, scraper), nil
	}
	return nil, errors.Errorf("unknown COMPOSER_PROVIDER %q", cfg.Provider)
}

func NewTransport(cfg config.MailConfig) (transport.Transport, error) {
	switch cfg.Provider {
	case "smtp":
		if cfg.SMTPHost == "" {
			return nil, errors.New("MAIL_PROVIDER=smtp requires SMTP_HOST")
		}
		return transport.NewSMTPTransport(transport.SMTPConfig{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Username:   cfg.SMTPUser,
			Password:   cfg.SMTPPassword,
			Insecure:   cfg.SMTPInsecure,
			From:       cfg.From,
			SenderName: cfg.SenderName,
			Domain:     cfg.TrackingDomain,
		}), nil
	case "resend":
		if cfg.ResendAPIKey == "" || cfg.From == "" {
			return nil, errors.New("MAIL_PROVIDER=resend requires RESEND_API_KEY and MAIL_FROM")
		}
		return transport.NewResendTransport(cfg.ResendAPIKey, cfg.From, cfg.SenderName, cfg.TrackingDomain), nil
	case "noop":
		return transport.NoopTransport{}, nil
	}
	return nil, errors.Errorf("unknown MAIL_PROVIDER %q", cfg.Provider)
}

func NewArchiver(ctx context.Context, cfg config.ArchiveConfig) (archive.Archiver, error) {
	switch cfg.Provider {
	case "noop":
		return archive.Noop{}, nil
	case "minio":
		return archive.NewMinioArchiver(ctx, archive.MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.UseSSL,
		})
	}
	return nil, errors.Errorf("unknown ARCHIVE_PROVIDER %q", cfg.Provider)
}

// NewResolver caches zone lookups in Redis when a client is given.
func NewResolver(cfg config.TimezoneConfig, rdb redis.UniversalClient) (*timezone.Resolver, error) {
	var cache timezone.ZoneCache = &timezone.MemoryCache{}
	if rdb != nil {
		cache = &timezone.RedisCache{Client: rdb, TTL: cfg.CacheTTL}
	}
	return timezone.NewDefault(cache, cfg.MinInterval)
}

func NewPlanner(cfg config.ScheduleConfig) *service.Planner {
	return service.NewPlanner(service.PlannerConfig{
		DailyCap:   cfg.DailyCap,
		SendHour:   cfg.SendTime.Hour,
		SendMinute: cfg.SendTime.Minute,
		SendSecond: cfg.SendTime.Second,
	})
}

func NewOutreach(cfg *config.Config) (*service.Outreach, error) {
	c, err := NewComposer(cfg.Composer)
	if err != nil {
		return nil, err
	}
	t, err := NewTransport(cfg.Mail)
	if err != nil {
		return nil, err
	}
	return &service.Outreach{Composer: c, Transport: t}, nil
}
