// Package collect drains a crawl session into battle files, stores and
// notifications.
package collect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/JakeFAU/ladder-battle-crawler/internal/clock/system"
	"github.com/JakeFAU/ladder-battle-crawler/internal/crawler"
	"github.com/JakeFAU/ladder-battle-crawler/internal/hash/sha256"
	idgen "github.com/JakeFAU/ladder-battle-crawler/internal/id/uuid"
	"github.com/JakeFAU/ladder-battle-crawler/internal/metrics"
	"github.com/JakeFAU/ladder-battle-crawler/internal/storage/csvfile"
	"github.com/JakeFAU/ladder-battle-crawler/internal/store"
)

// DefaultCloseTimeout bounds how long Run waits for in-flight fetches after
// the caller's context is cancelled.
const DefaultCloseTimeout = 30 * time.Second

// Source yields battle batches. *crawler.Engine implements it.
type Source interface {
	Open(ctx context.Context) error
	Next(ctx context.Context) (crawler.Batch, error)
	Close(ctx context.Context) error
	Stats() crawler.Stats
}

// Clock stamps runs, files and notifications.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints run IDs.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}

// Publisher sends batch notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Notification is published once per yielded battlelog.
type Notification struct {
	RunID      uuid.UUID `json:"run_id"`
	Tag        string    `json:"tag"`
	Battles    int       `json:"battles"`
	NewBattles int       `json:"new_battles"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Attributes exposes routing attributes for Pub/Sub.
func (n Notification) Attributes() map[string]string {
	return map[string]string{"run_id": n.RunID.String(), "tag": n.Tag}
}

// Config controls where battles go.
type Config struct {
	// OutputDir receives {start}.csv.
	OutputDir string
	// Compress and KeepOriginal control the finished CSV.
	Compress     bool
	KeepOriginal bool
	// ArchivePrefix is prepended to the file name when uploading.
	ArchivePrefix string
	// Topic is passed to the publisher.
	Topic        string
	CloseTimeout time.Duration
}

// Result summarizes a finished run.
type Result struct {
	RunID            uuid.UUID
	Reason           string
	PlayersProcessed int
	BattlesWritten   int
	Stored           map[string]int
	File             string
	// Checksum is the hex SHA-256 of File.
	Checksum   string
	ArchiveURI string
}

// Collector runs one crawl session end to end.
type Collector struct {
	cfg       Config
	source    Source
	stores    []store.BattleStore
	archive   store.BlobStore
	runs      store.RunRepository
	publisher Publisher
	logger    *zap.Logger
	clock     Clock
	ids       IDGenerator
	hasher    *sha256.Hasher

	seen map[crawler.Key]struct{}
}

// Option customizes a Collector.
type Option func(*Collector)

// WithStores adds battle stores that receive every new battle.
func WithStores(stores ...store.BattleStore) Option {
	return func(c *Collector) { c.stores = append(c.stores, stores...) }
}

// WithArchive uploads the finished battle file.
func WithArchive(blob store.BlobStore) Option {
	return func(c *Collector) { c.archive = blob }
}

// WithRunRepository records the run's lifecycle.
func WithRunRepository(runs store.RunRepository) Option {
	return func(c *Collector) { c.runs = runs }
}

// WithPublisher publishes a Notification per batch.
func WithPublisher(p Publisher) Option {
	return func(c *Collector) { c.publisher = p }
}

// WithClock overrides the wall clock.
func WithClock(clock Clock) Option {
	return func(c *Collector) { c.clock = clock }
}

// WithIDGenerator overrides how run IDs are minted.
func WithIDGenerator(ids IDGenerator) Option {
	return func(c *Collector) { c.ids = ids }
}

// New builds a Collector over source.
func New(cfg Config, source Source, logger *zap.Logger, opts ...Option) (*Collector, error) {
	if source == nil {
		return nil, errors.New("source is required")
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return nil, errors.New("output dir is required")
	}
	if cfg.KeepOriginal && !cfg.Compress {
		return nil, errors.New("keep original requires compress")
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultCloseTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		cfg:    cfg,
		source: source,
		logger: logger.Named("collect"),
		clock:  system.New(),
		ids:    idgen.New(),
		hasher: sha256.New(),
		seen:   make(map[crawler.Key]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run opens the source, writes every new battle until the session ends and
// finalizes the battle file. A cancelled ctx stops the crawl; whatever was
// written is still finalized.
func (c *Collector) Run(ctx context.Context) (Result, error) {
	runID, err := c.ids.NewRunID()
	if err != nil {
		return Result{}, fmt.Errorf("generate run id: %w", err)
	}
	start := c.clock.Now().UTC()
	res := Result{RunID: runID, Stored: make(map[string]int)}
	logger := c.logger.With(zap.String("run_id", runID.String()))

	if c.runs != nil {
		if err := c.runs.StartRun(ctx, runID, start); err != nil {
			return res, fmt.Errorf("start run: %w", err)
		}
	}

	if err := c.source.Open(ctx); err != nil {
		res.Reason = c.source.Stats().Reason
		c.finishRun(ctx, res, err)
		return res, fmt.Errorf("open crawl session: %w", err)
	}

	writer, err := csvfile.Create(c.cfg.OutputDir, start)
	if err != nil {
		c.closeSource(ctx)
		c.finishRun(ctx, res, err)
		return res, err
	}
	logger.Info("collecting battles", zap.String("file", writer.Path()))

	runErr := c.consume(ctx, runID, writer, &res)
	c.closeSource(ctx)

	stats := c.source.Stats()
	res.Reason = stats.Reason
	res.PlayersProcessed = stats.PlayersProcessed
	res.BattlesWritten = writer.Rows()

	file, err := csvfile.Finalize(writer, csvfile.FinalizeOptions{
		Compress:     c.cfg.Compress,
		KeepOriginal: c.cfg.KeepOriginal,
	})
	if err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("finalize battle file: %w", err))
	} else {
		res.File = file
		if sum, err := c.hasher.HashFile(file); err != nil {
			logger.Warn("failed to checksum battle file", zap.Error(err))
		} else {
			res.Checksum = sum
		}
		if uri, err := c.upload(ctx, file); err != nil {
			runErr = errors.Join(runErr, err)
		} else {
			res.ArchiveURI = uri
		}
	}

	logger.Info("collection finished",
		zap.String("reason", res.Reason),
		zap.Int("players_processed", res.PlayersProcessed),
		zap.Int("battles_written", res.BattlesWritten),
		zap.String("file", res.File),
		zap.String("sha256", res.Checksum),
		zap.String("archive_uri", res.ArchiveURI),
	)
	c.finishRun(ctx, res, runErr)
	return res, runErr
}

func (c *Collector) consume(ctx context.Context, runID uuid.UUID, writer *csvfile.Writer, res *Result) error {
	for {
		batch, err := c.source.Next(ctx)
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("collection interrupted", zap.Error(err))
				return nil
			}
			return fmt.Errorf("next batch: %w", err)
		}

		fresh := c.dedup(batch.Battles)
		if err := writer.Write(fresh); err != nil {
			return err
		}
		for _, s := range c.stores {
			n, err := s.SaveBattles(ctx, runID, fresh)
			if err != nil {
				c.logger.Error("battle store write failed", zap.String("store", s.Name()), zap.Error(err))
				continue
			}
			metrics.ObserveStored(s.Name(), n)
			res.Stored[s.Name()] += n
		}
		c.notify(ctx, runID, batch, len(fresh))

		c.logger.Debug("battlelog collected",
			zap.String("tag", batch.Tag.String()),
			zap.Int("battles", len(batch.Battles)),
			zap.Int("new_battles", len(fresh)),
		)
	}
}

// dedup canonicalizes battles and drops those already written this run.
func (c *Collector) dedup(battles []crawler.Battle) []crawler.Battle {
	fresh := make([]crawler.Battle, 0, len(battles))
	for _, b := range battles {
		key := crawler.CanonicalKey(b)
		if _, ok := c.seen[key]; ok {
			continue
		}
		c.seen[key] = struct{}{}
		fresh = append(fresh, b.Canonical())
	}
	return fresh
}

func (c *Collector) notify(ctx context.Context, runID uuid.UUID, batch crawler.Batch, fresh int) {
	if c.publisher == nil {
		return
	}
	note := Notification{
		RunID:      runID,
		Tag:        batch.Tag.String(),
		Battles:    len(batch.Battles),
		NewBattles: fresh,
		FetchedAt:  c.clock.Now().UTC(),
	}
	if _, err := c.publisher.Publish(ctx, c.cfg.Topic, note); err != nil {
		c.logger.Warn("failed to publish batch notification", zap.String("tag", note.Tag), zap.Error(err))
	}
}

func (c *Collector) closeSource(ctx context.Context) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.CloseTimeout)
	defer cancel()
	if err := c.source.Close(closeCtx); err != nil {
		c.logger.Warn("crawl session closed with error", zap.Error(err))
	}
}

func (c *Collector) upload(ctx context.Context, file string) (string, error) {
	if c.archive == nil {
		return "", nil
	}
	f, err := os.Open(file) //nolint:gosec // path produced by csvfile
	if err != nil {
		return "", fmt.Errorf("open battle file: %w", err)
	}
	defer f.Close()

	contentType := "text/csv"
	if strings.HasSuffix(file, ".gz") {
		contentType = "application/gzip"
	}
	key := path.Join(c.cfg.ArchivePrefix, filepath.Base(file))
	uri, err := c.archive.PutObject(context.WithoutCancel(ctx), key, contentType, f)
	if err != nil {
		return "", fmt.Errorf("upload battle file: %w", err)
	}
	return uri, nil
}

func (c *Collector) finishRun(ctx context.Context, res Result, runErr error) {
	if c.runs == nil {
		return
	}
	finished := c.clock.Now().UTC()
	run := store.Run{
		ID:               res.RunID,
		FinishedAt:       &finished,
		Status:           store.RunSuccess,
		Reason:           res.Reason,
		PlayersProcessed: res.PlayersProcessed,
		BattlesStored:    res.BattlesWritten,
		ArchiveURI:       res.ArchiveURI,
	}
	if runErr != nil {
		msg := runErr.Error()
		run.Status = store.RunError
		run.ErrorMessage = &msg
	}
	if err := c.runs.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		c.logger.Error("failed to record run result", zap.Error(err))
	}
}
