package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mikey/mail-labeler/internal/classifier"
	"github.com/mikey/mail-labeler/internal/metrics"
	"github.com/mikey/mail-labeler/internal/persist"
	"github.com/mikey/mail-labeler/internal/scheduler"
	"go.uber.org/zap"
)

// Keys under which the service persists its state
const (
	KeyDataset      = "dataset"
	KeySenderMemory = "senderMemory"
	KeyPredictions  = "emailLabelMap"
)

// DefaultRebuildDelay is the quiet interval before a model rebuild
const DefaultRebuildDelay = 2 * time.Second

var (
	// ErrEmptyLabel is returned when a correction names no label
	ErrEmptyLabel = errors.New("label must not be empty")

	// ErrNoThreadSource is returned by LearnThread when no source is configured
	ErrNoThreadSource = errors.New("no thread source configured")
)

// Settings are the tunables of a LabelerService
type Settings struct {
	MaxSamples     int
	MaxPredictions int
	RebuildDelay   time.Duration
	SenderBoost  bool
	AutoLearn    bool
}

// DefaultSettings returns the stock settings
func DefaultSettings() Settings {
	return Settings{
		MaxSamples:     DefaultMaxSamples,
		MaxPredictions: DefaultMaxPredictions,
		RebuildDelay:   DefaultRebuildDelay,
		SenderBoost:  true,
		AutoLearn:    true,
	}
}

// SenderExcluder decides whether records from a sender are left out of training
type SenderExcluder interface {
	IsExcluded(sender string) bool
}

// Option configures a LabelerService
type Option func(*LabelerService)

// WithSuggester labels unhinted ingested records through s. Suggestions
// below minConfidence are ignored.
func WithSuggester(s LabelSuggester, minConfidence float64) Option {
	return func(svc *LabelerService) {
		svc.suggester = s
		svc.minSuggestConfidence = minConfidence
	}
}

// WithExcluder skips training on records whose sender e excludes
func WithExcluder(e SenderExcluder) Option {
	return func(svc *LabelerService) {
		svc.excluder = e
	}
}

// WithThreadSource enables LearnThread
func WithThreadSource(src ThreadSource) Option {
	return func(svc *LabelerService) {
		svc.threads = src
	}
}

// WithClock drives the rebuild and persistence timers from clock
func WithClock(clock scheduler.Clock) Option {
	return func(svc *LabelerService) {
		if clock != nil {
			svc.clock = clock
		}
	}
}

// WithPersistOptions tunes the background state writer
func WithPersistOptions(opts ...persist.Option) Option {
	return func(svc *LabelerService) {
		svc.persistOpts = append(svc.persistOpts, opts...)
	}
}

// LabelerService owns the training set and serves predictions from the
// latest fully built model snapshot.
type LabelerService struct {
	store    KeyValueStore
	logger   *zap.Logger
	settings Settings

	model atomic.Pointer[classifier.Model]
	// rebuildMu serializes rebuilds so a model built from an older sample
	// snapshot is never stored over a newer one
	rebuildMu sync.Mutex

	// mu guards samples; affinity and predictions lock themselves
	mu          sync.Mutex
	samples     *SampleStore
	affinity    *SenderAffinity
	predictions *PredictionCache

	clock       scheduler.Clock
	rebuilder   *scheduler.Debouncer
	writer      *persist.Writer
	persistOpts []persist.Option

	suggester            LabelSuggester
	minSuggestConfidence float64
	excluder             SenderExcluder
	threads              ThreadSource
}

// NewLabelerService creates a service with an empty model. Call Load to
// restore persisted state.
func NewLabelerService(store KeyValueStore, logger *zap.Logger, settings Settings, opts ...Option) *LabelerService {
	if settings.RebuildDelay <= 0 {
		settings.RebuildDelay = DefaultRebuildDelay
	}
	s := &LabelerService{
		store:       store,
		logger:      logger,
		settings:    settings,
		samples:     NewSampleStore(settings.MaxSamples),
		affinity:    NewSenderAffinity(),
		predictions: NewPredictionCache(settings.MaxPredictions),
		clock:       scheduler.RealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.model.Store(classifier.Empty())
	s.rebuilder = scheduler.NewDebouncer(settings.RebuildDelay, s.clock, s.RebuildNow)

	writerOpts := append([]persist.Option{persist.WithClock(s.clock)}, s.persistOpts...)
	s.writer = persist.NewWriter("model", store, s.encodeState, logger, writerOpts...)
	return s
}

// Load restores samples, sender affinity and cached predictions from the
// store and rebuilds the model synchronously. A corrupt key is logged and
// treated as empty.
func (s *LabelerService) Load(ctx context.Context) error {
	values, err := s.store.Get(ctx, map[string][]byte{
		KeyDataset:      []byte("[]"),
		KeySenderMemory: []byte("{}"),
		KeyPredictions:  []byte("{}"),
	})
	if err != nil {
		return fmt.Errorf("failed to load labeler state: %w", err)
	}

	var samples []Sample
	if err := json.Unmarshal(values[KeyDataset], &samples); err != nil {
		s.logger.Warn("Ignoring unreadable dataset", zap.Error(err))
		samples = nil
	}
	var memory map[string]map[string]int
	if err := json.Unmarshal(values[KeySenderMemory], &memory); err != nil {
		s.logger.Warn("Ignoring unreadable sender memory", zap.Error(err))
		memory = nil
	}
	var cached map[string]Prediction
	if err := json.Unmarshal(values[KeyPredictions], &cached); err != nil {
		s.logger.Warn("Ignoring unreadable prediction cache", zap.Error(err))
		cached = nil
	}

	s.mu.Lock()
	s.samples.Restore(samples)
	s.mu.Unlock()
	s.affinity.Restore(memory)
	s.predictions.Restore(cached)

	s.RebuildNow()
	s.logger.Info("Restored labeler state",
		zap.Int("samples", len(samples)),
		zap.Int("senders", len(memory)),
		zap.Int("cached_predictions", len(cached)))
	return nil
}

// Model returns the active model snapshot
func (s *LabelerService) Model() *classifier.Model {
	return s.model.Load()
}

// Predict returns the cached prediction for the record, or scores it
// against the active model and caches the result.
func (s *LabelerService) Predict(sender, subject string) Prediction {
	key := PredictionKey(sender, subject)
	if p, ok := s.predictions.Get(key); ok {
		metrics.RecordPrediction(metrics.PredictionCached)
		return p
	}

	p := s.Classify(sender, subject)
	s.predictions.Put(key, p)
	s.writer.Schedule()
	return p
}

// Classify scores the record against the active model without consulting
// or updating the cache.
func (s *LabelerService) Classify(sender, subject string) Prediction {
	p := s.model.Load().Predict(sender, subject, s.affinity, s.settings.SenderBoost)
	s.predictions.Trace(sender, subject, p, s.clock.Now())
	metrics.RecordPrediction(metrics.PredictionComputed)
	return p
}

// Correct records the user's chosen label for a record. The record's
// cached prediction becomes {label, 1} immediately; the model catches up
// after the next rebuild.
func (s *LabelerService) Correct(sender, subject, label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return ErrEmptyLabel
	}

	s.append([]Sample{s.newSample(sender, subject, label, OriginUserCorrected)}, true)
	s.predictions.Put(PredictionKey(sender, subject), Prediction{Label: label, Confidence: 1})
	metrics.RecordCorrection()

	s.logger.Info("Applied correction",
		zap.String("sender", sender),
		zap.String("label", label))
	return nil
}

// Append adds one sample to the training set
func (s *LabelerService) Append(sample Sample) {
	s.append([]Sample{sample}, false)
}

// Ingest learns from one fetched record and returns the number of samples
// added. Each label hint becomes a sample and a sender confirmation. A record
// without hints is labeled by the suggester when one is configured, or with
// the default label.
func (s *LabelerService) Ingest(ctx context.Context, d *MessageDetail) int {
	if d == nil {
		return 0
	}
	if s.excluder != nil && s.excluder.IsExcluded(d.Sender) {
		s.logger.Debug("Skipping excluded sender",
			zap.String("message_id", d.ID),
			zap.String("sender", d.Sender))
		return 0
	}
	if !s.settings.AutoLearn {
		return 0
	}

	if hints := uniqueLabels(d.LabelHints); len(hints) > 0 {
		return s.learnHints(d, hints)
	}

	label := s.suggestLabel(ctx, d)
	s.append([]Sample{s.newSample(d.Sender, d.Subject, label, OriginAutoIngested)}, false)
	return 1
}

// LearnThread learns from the label hints of a thread's first message. A
// thread without hints adds nothing.
func (s *LabelerService) LearnThread(ctx context.Context, threadID string) (int, error) {
	if s.threads == nil {
		return 0, ErrNoThreadSource
	}
	d, err := s.threads.ThreadDetail(ctx, threadID)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch thread %s: %w", threadID, err)
	}
	hints := uniqueLabels(d.LabelHints)
	if len(hints) == 0 {
		s.logger.Debug("Thread carries no labels", zap.String("thread_id", threadID))
		return 0, nil
	}
	return s.learnHints(d, hints), nil
}

// RebuildNow rebuilds vocabulary, weights and centroids from the current
// training set and swaps the new model in.
func (s *LabelerService) RebuildNow() {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	start := time.Now()

	s.mu.Lock()
	samples := s.samples.Snapshot()
	s.mu.Unlock()

	docs := make([]classifier.Document, len(samples))
	for i, sample := range samples {
		docs[i] = classifier.Document{
			Text:  classifier.DocumentText(sample.Sender, sample.Subject),
			Label: sample.Label,
		}
	}
	m := classifier.Build(docs)
	s.model.Store(m)

	elapsed := time.Since(start)
	metrics.ObserveRebuild(elapsed, m.Samples(), m.VocabularySize())
	s.logger.Debug("Rebuilt model",
		zap.Int("samples", m.Samples()),
		zap.Int("vocabulary", m.VocabularySize()),
		zap.Strings("labels", m.Labels()),
		zap.Duration("took", elapsed))
}

// Stats describes the active model
func (s *LabelerService) Stats() Stats {
	m := s.model.Load()
	s.mu.Lock()
	stored := s.samples.Len()
	s.mu.Unlock()
	return Stats{
		Samples:        m.Samples(),
		StoredSamples:  stored,
		VocabularySize: m.VocabularySize(),
		Labels:         m.Labels(),
		BuiltAt:        m.BuiltAt(),
		RebuildPending: s.rebuilder.State().Pending,
	}
}

// Labels returns the labels known to the active model
func (s *LabelerService) Labels() []string {
	return s.model.Load().Labels()
}

// Export returns the training set and sender memory
func (s *LabelerService) Export() *ExportData {
	s.mu.Lock()
	dataset := s.samples.Snapshot()
	s.mu.Unlock()
	return &ExportData{
		Dataset:      dataset,
		SenderMemory: s.affinity.Snapshot(),
	}
}

// Invalidate drops the cached prediction for one record
func (s *LabelerService) Invalidate(sender, subject string) {
	s.predictions.Delete(PredictionKey(sender, subject))
	s.writer.Schedule()
}

// ResetPredictions drops every cached prediction
func (s *LabelerService) ResetPredictions() {
	s.predictions.Reset()
	s.writer.Schedule()
}

// RecentPredictions returns the most recently computed predictions, newest first
func (s *LabelerService) RecentPredictions() []TracedPrediction {
	return s.predictions.Recent()
}

// Flush runs any pending rebuild and writes the state now
func (s *LabelerService) Flush(ctx context.Context) error {
	s.rebuilder.Flush()
	return s.writer.Flush(ctx)
}

// Close flushes once and stops the background timers
func (s *LabelerService) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	s.rebuilder.Stop()
	s.writer.Stop()
	return err
}

func (s *LabelerService) learnHints(d *MessageDetail, hints []string) int {
	batch := make([]Sample, 0, len(hints))
	for _, label := range hints {
		batch = append(batch, s.newSample(d.Sender, d.Subject, label, OriginAutoIngested))
	}
	s.append(batch, true)
	return len(batch)
}

// append adds samples, optionally counting each as a sender confirmation,
// then schedules persistence and a rebuild once for the whole batch.
func (s *LabelerService) append(batch []Sample, confirm bool) {
	s.mu.Lock()
	for _, sample := range batch {
		s.samples.Append(sample)
	}
	s.mu.Unlock()

	if confirm {
		for _, sample := range batch {
			s.affinity.Increment(sample.Sender, sample.Label)
		}
	}
	s.writer.Schedule()
	s.rebuilder.Trigger()
}

func (s *LabelerService) suggestLabel(ctx context.Context, d *MessageDetail) string {
	labels := s.Labels()
	if s.suggester == nil || len(labels) == 0 {
		return classifier.UnclassifiedLabel
	}

	suggestion, err := s.suggester.SuggestLabel(ctx, &LabelRequest{
		Sender:  d.Sender,
		Subject: d.Subject,
		Labels:  labels,
	})
	if err != nil {
		s.logger.Warn("Label suggestion failed, using default label",
			zap.String("message_id", d.ID),
			zap.Error(err))
		return classifier.UnclassifiedLabel
	}
	if suggestion.Confidence < s.minSuggestConfidence || !contains(labels, suggestion.Label) {
		s.logger.Debug("Discarding label suggestion",
			zap.String("message_id", d.ID),
			zap.String("label", suggestion.Label),
			zap.Float64("confidence", suggestion.Confidence))
		return classifier.UnclassifiedLabel
	}
	return suggestion.Label
}

func (s *LabelerService) newSample(sender, subject, label string, origin Origin) Sample {
	return Sample{
		Sender:    sender,
		Subject:   subject,
		Label:     label,
		Timestamp: s.clock.Now().UnixMilli(),
		Origin:    origin,
	}
}

func (s *LabelerService) encodeState() (map[string][]byte, error) {
	s.mu.Lock()
	samples := s.samples.Snapshot()
	s.mu.Unlock()

	dataset, err := json.Marshal(samples)
	if err != nil {
		return nil, err
	}
	memory, err := json.Marshal(s.affinity.Snapshot())
	if err != nil {
		return nil, err
	}
	cached, err := json.Marshal(s.predictions.Snapshot())
	if err != nil {
		return nil, err
	}
	return map[string][]byte{
		KeyDataset:      dataset,
		KeySenderMemory: memory,
		KeyPredictions:  cached,
	}, nil
}

func uniqueLabels(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
