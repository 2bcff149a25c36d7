package di

import (
	"context"

	"github.com/mikey/mail-labeler/internal/adapters/gmail"
	"github.com/mikey/mail-labeler/internal/adapters/httpapi"
	"github.com/mikey/mail-labeler/internal/config"
	"github.com/mikey/mail-labeler/internal/core"
	"github.com/mikey/mail-labeler/internal/domains"
	"github.com/mikey/mail-labeler/internal/factory"
	"github.com/mikey/mail-labeler/internal/ingest"
	"github.com/mikey/mail-labeler/internal/metrics"
	"github.com/mikey/mail-labeler/internal/persist"
	"github.com/mikey/mail-labeler/internal/ports"
	"github.com/mikey/mail-labeler/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// provideShared registers everything both containers build the same way.
// dig constructs lazily, so a command only pays for what it asks for.
func provideShared(container *dig.Container) error {
	providers := []any{
		utils.NewTextProcessor,

		factory.NewStoreFactory,
		factory.NewLLMFactory,
		factory.NewSourceFactory,
		factory.NewFilterFactory,

		func(f *factory.StoreFactory) (ports.StateStore, error) {
			return f.CreateStore()
		},
		func(f *factory.LLMFactory) (core.LabelSuggester, error) {
			return f.CreateSuggester(context.Background())
		},
		func(f *factory.SourceFactory) (*gmail.Source, error) {
			return f.CreateSource(context.Background())
		},
		func(f *factory.FilterFactory) (ports.EmailFilter, error) {
			return f.CreateEmailFilter()
		},

		newExcluder,
		newLabelerService,
		newThresholds,
		newQueue,

		func(svc *core.LabelerService) ports.Labeler { return svc },
		func(t *core.Thresholds) ports.ThresholdReader { return t },
	}

	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return err
		}
	}
	return nil
}

func persistOptions(cfg *config.Config) []persist.Option {
	pc := cfg.GetPersist()
	return []persist.Option{
		persist.WithDelay(pc.Delay),
		persist.WithRetries(pc.MaxRetries),
		persist.WithRetryDelay(pc.RetryDelay),
	}
}

func newExcluder(cfg *config.Config, logger *zap.Logger) *domains.Checker {
	excluded := cfg.GetIngest().ExcludedDomains
	if len(excluded) > 0 {
		logger.Info("Loaded excluded sender domains", zap.Strings("domains", excluded))
	}
	return domains.NewChecker(excluded, logger)
}

type serviceParams struct {
	dig.In

	Config    *config.Config
	Logger    *zap.Logger
	Store     ports.StateStore
	Suggester core.LabelSuggester
	Source    *gmail.Source
	Excluder  *domains.Checker
}

func newLabelerService(p serviceParams) *core.LabelerService {
	cc := p.Config.GetClassifier()
	settings := core.Settings{
		MaxSamples:     cc.MaxSamples,
		MaxPredictions: cc.PredictionCacheSize,
		RebuildDelay:   cc.RebuildDelay,
		SenderBoost:    cc.SenderBoost,
		AutoLearn:      p.Config.GetIngest().AutoLearn,
	}

	opts := []core.Option{
		core.WithExcluder(p.Excluder),
		core.WithPersistOptions(persistOptions(p.Config)...),
	}
	if p.Suggester != nil {
		opts = append(opts, core.WithSuggester(p.Suggester, p.Config.GetLLM().MinConfidence))
	}
	if p.Source != nil {
		opts = append(opts, core.WithThreadSource(p.Source))
	}

	return core.NewLabelerService(p.Store, p.Logger, settings, opts...)
}

func newThresholds(cfg *config.Config, store ports.StateStore) *core.Thresholds {
	return core.NewThresholds(store, cfg.GetThresholds())
}

// newQueue returns nil when no message source is configured. The queue
// resumes on its own when the source recovers from an outage.
func newQueue(cfg *config.Config, logger *zap.Logger, store ports.StateStore, svc *core.LabelerService, src *gmail.Source) *ingest.Queue {
	if src == nil {
		return nil
	}
	ic := cfg.GetIngest()
	q := ingest.NewQueue(src, svc, store, logger, ingest.Config{
		BatchSize: ic.BatchSize,
		MaxItems:  ic.MaxItems,
	}, persistOptions(cfg)...)
	src.OnReconnect(q.HandleReconnect)
	return q
}

func newPoller(cfg *config.Config, logger *zap.Logger, queue *ingest.Queue) *ingest.Poller {
	if queue == nil {
		return nil
	}
	return ingest.NewPoller(queue, cfg.GetIngest().Interval, logger)
}

func newRegistry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	if err := metrics.Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// newHTTPServer returns nil when the API is disabled
func newHTTPServer(cfg *config.Config, logger *zap.Logger, svc *core.LabelerService, thresholds *core.Thresholds, queue *ingest.Queue, reg *prometheus.Registry) *httpapi.Server {
	hc := cfg.GetHTTP()
	if !hc.Enabled {
		return nil
	}

	var ingester httpapi.Ingester
	if queue != nil {
		ingester = queue
	}
	return httpapi.New(httpapi.Config{
		ListenAddr:     hc.ListenAddress,
		RequestTimeout: hc.RequestTimeout,
	}, svc, thresholds, ingester, reg, logger)
}
