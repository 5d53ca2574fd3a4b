package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/xxxsen/common/logutil"

	"github.com/kvander/bookdex/internal/chunksplit"
	"github.com/kvander/bookdex/internal/classifier"
	"github.com/kvander/bookdex/internal/dedup"
	"github.com/kvander/bookdex/internal/detect"
	"github.com/kvander/bookdex/internal/embed"
	"github.com/kvander/bookdex/internal/extract"
	"github.com/kvander/bookdex/internal/filestore"
	"github.com/kvander/bookdex/internal/model"
	appErr "github.com/kvander/bookdex/internal/pkg/errors"
	"github.com/kvander/bookdex/internal/pkg/timeutil"
	"github.com/kvander/bookdex/internal/repo"
	"github.com/kvander/bookdex/internal/task"
	"github.com/kvander/bookdex/internal/textdoc"
	"github.com/kvander/bookdex/internal/vectorindex"
)

type IngestDeps struct {
	Books        *repo.BookRepo
	Chapters     *repo.ChapterRepo
	Chunks       *repo.ChunkRepo
	Store        filestore.Store
	Detector     *detect.Detector
	Splitter     *chunksplit.Splitter
	Pipeline     *embed.Pipeline
	Dedup        *dedup.Detector
	ChapterIndex vectorindex.Index
	ChunkIndex   vectorindex.Index
	Dispatcher   *task.Dispatcher
	TypeWeights  map[string]float64
}

type IngestService struct {
	deps IngestDeps
}

type IngestResult struct {
	BookID           string `json:"book_id"`
	Classification   string `json:"classification"`
	ChaptersDetected int    `json:"chapters_detected"`
}

func NewIngestService(deps IngestDeps) *IngestService {
	return &IngestService{deps: deps}
}

// Ingest runs the synchronous half of the pipeline: classification,
// chapter detection, extraction and chunking all commit before the
// response, while embedding and duplicate detection are queued behind it.
func (s *IngestService) Ingest(ctx context.Context, filename string, r filestore.ReadSeekCloser, size int64) (*IngestResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	title := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	doc := textdoc.Parse(title, data)
	if doc.PageCount() == 0 || doc.WordCount() == 0 {
		return nil, fmt.Errorf("document has no readable text: %w", appErr.ErrInvalid)
	}

	cls := classifier.Classify(doc)
	bookID := newID()
	sourceKey := "books/" + bookID + ".txt"
	if err := s.deps.Store.Save(ctx, sourceKey, r, size); err != nil {
		return nil, fmt.Errorf("store source: %w", err)
	}

	now := timeutil.NowUnix()
	book := &model.Book{
		ID:                       bookID,
		Title:                    title,
		Classification:           cls.Classification,
		ClassificationConfidence: cls.Confidence,
		ProcessingStatus:         model.BookStatusPending,
		SourceKey:                sourceKey,
		Ctime:                    now,
		Mtime:                    now,
	}
	if err := s.deps.Books.Create(ctx, book); err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}

	detection := s.deps.Detector.Detect(ctx, doc)
	created := s.persistChapters(ctx, book, doc, detection)

	if err := s.deps.Books.FinishDetection(ctx, bookID, created, model.BookStatusProcessing, timeutil.NowUnix()); err != nil {
		return nil, fmt.Errorf("finish detection: %w", err)
	}
	if err := s.deps.Dispatcher.Submit(s.embedBookTask(bookID)); err != nil {
		// The sweep job picks up pending chapters later; ingest itself
		// already committed everything it owns.
		logutil.GetLogger(ctx).Warn("embed task not queued, left for sweep",
			zap.String("book_id", bookID), zap.Error(err))
	}
	return &IngestResult{
		BookID:           bookID,
		Classification:   cls.Classification,
		ChaptersDetected: created,
	}, nil
}

// persistChapters extracts and stores each detected chapter. A chapter
// that fails extraction or collides on content hash is skipped and
// logged; the rest of the book continues.
func (s *IngestService) persistChapters(ctx context.Context, book *model.Book, doc *textdoc.Document, detection detect.Detection) int {
	logger := logutil.GetLogger(ctx).With(zap.String("book_id", book.ID))
	weight := s.deps.TypeWeights[book.Classification]
	created := 0
	for _, b := range detection.Chapters {
		ext, err := extract.Extract(doc, b)
		if err != nil {
			logger.Warn("chapter extraction skipped", zap.String("title", b.Title), zap.Error(err))
			continue
		}
		ch := &model.Chapter{
			ID:                  newID(),
			BookID:              book.ID,
			Title:               ext.Title,
			StartPage:           b.StartPage,
			EndPage:             b.EndPage,
			Content:             ext.NormalizedText,
			ContentHash:         ext.ContentHash,
			DetectionMethod:     detection.Method,
			DetectionConfidence: detection.Confidence,
			EmbedState:          model.EmbedStatePending,
			PreferenceScore:     weight,
			Ctime:               timeutil.NowUnix(),
		}
		if err := s.deps.Chapters.CreateBatch(ctx, []*model.Chapter{ch}); err != nil {
			if appErr.IsConflict(err) {
				logger.Info("identical chapter already stored", zap.String("title", ext.Title))
				continue
			}
			logger.Warn("chapter insert failed", zap.String("title", ext.Title), zap.Error(err))
			continue
		}
		created++
		s.persistChunks(ctx, ch, logger)
	}
	return created
}

func (s *IngestService) persistChunks(ctx context.Context, ch *model.Chapter, logger *zap.Logger) {
	if !s.deps.Splitter.Needed(ch.Content) {
		return
	}
	pieces := s.deps.Splitter.Split(ch.Content)
	chunks := make([]*model.Chunk, 0, len(pieces))
	for i, p := range pieces {
		chunks = append(chunks, &model.Chunk{
			ID:            newID(),
			ChapterID:     ch.ID,
			Seq:           i,
			Heading:       p.Heading,
			Content:       p.Content,
			TokenEstimate: p.TokenEstimate,
			EmbedState:    model.EmbedStatePending,
			Ctime:         timeutil.NowUnix(),
		})
	}
	if err := s.deps.Chunks.CreateBatch(ctx, chunks); err != nil {
		logger.Warn("chunk insert failed", zap.String("chapter_id", ch.ID), zap.Error(err))
	}
}

// embedBookTask chains embedding ahead of duplicate detection, so dedup
// never sees a chapter whose vector is still pending from this run.
func (s *IngestService) embedBookTask(bookID string) task.Task {
	return task.Task{
		Name: "embed_book/" + bookID,
		Run: func(ctx context.Context) ([]task.Task, error) {
			if err := s.EmbedBook(ctx, bookID); err != nil {
				return nil, err
			}
			return []task.Task{s.dedupBookTask(bookID)}, nil
		},
	}
}

func (s *IngestService) dedupBookTask(bookID string) task.Task {
	return task.Task{
		Name: "dedup_book/" + bookID,
		Run: func(ctx context.Context) ([]task.Task, error) {
			if err := s.deps.Dedup.Run(ctx, bookID); err != nil {
				// Chapters stay unmarked; the periodic sweep retries.
				logutil.GetLogger(ctx).Error("duplicate detection failed",
					zap.String("book_id", bookID), zap.Error(err))
			}
			progress, err := s.deps.Chapters.Progress(ctx, bookID)
			if err != nil {
				return nil, err
			}
			// Completed means every item reached a terminal state; items
			// the sweep still owes keep the book in processing.
			if progress.ChaptersWithEmbedding+progress.FailedItems >= progress.TotalChapters {
				if err := s.deps.Books.UpdateStatus(ctx, bookID, model.BookStatusCompleted, timeutil.NowUnix()); err != nil {
					return nil, err
				}
			}
			return nil, nil
		},
	}
}

// EmbedBook embeds every pending chapter and chunk of the book. Items
// already embedded are skipped, so resubmitting a half-processed book is
// safe and cheap.
func (s *IngestService) EmbedBook(ctx context.Context, bookID string) error {
	chapters, err := s.deps.Chapters.ListByBook(ctx, bookID)
	if err != nil {
		return fmt.Errorf("list chapters: %w", err)
	}
	var chapterItems []embed.Item
	var chunkItems []embed.Item
	for _, ch := range chapters {
		if ch.EmbedState == model.EmbedStatePending {
			chapterItems = append(chapterItems, embed.Item{ID: ch.ID, Content: ch.Content, ContentHash: ch.ContentHash})
		}
		chunks, err := s.deps.Chunks.ListByChapter(ctx, ch.ID)
		if err != nil {
			return fmt.Errorf("list chunks: %w", err)
		}
		for _, c := range chunks {
			if c.EmbedState == model.EmbedStatePending {
				chunkItems = append(chunkItems, embed.Item{ID: c.ID, Content: c.Content})
			}
		}
	}

	stats := s.deps.Pipeline.Run(ctx, chapterItems, &chapterSink{svc: s})
	chunkStats := s.deps.Pipeline.Run(ctx, chunkItems, &chunkSink{svc: s})
	logutil.GetLogger(ctx).Info("book embedding pass finished",
		zap.String("book_id", bookID),
		zap.Int("chapters_done", stats.Done),
		zap.Int("chapters_failed", stats.Failed),
		zap.Int("chunks_done", chunkStats.Done),
		zap.Int("chunks_failed", chunkStats.Failed),
		zap.Int("cache_hits", stats.FromCache+chunkStats.FromCache))
	return nil
}

// ProcessPendingEmbeddings is the resumability path: anything a crashed
// or overloaded run left pending is picked up here, then duplicate
// detection is chained for the books that advanced.
func (s *IngestService) ProcessPendingEmbeddings(ctx context.Context, limit uint) error {
	chapters, err := s.deps.Chapters.ListPendingEmbed(ctx, limit)
	if err != nil {
		return fmt.Errorf("list pending chapters: %w", err)
	}
	chapterItems := make([]embed.Item, 0, len(chapters))
	bookIDs := make(map[string]bool)
	for _, ch := range chapters {
		chapterItems = append(chapterItems, embed.Item{ID: ch.ID, Content: ch.Content, ContentHash: ch.ContentHash})
		bookIDs[ch.BookID] = true
	}
	chunks, err := s.deps.Chunks.ListPendingEmbed(ctx, limit)
	if err != nil {
		return fmt.Errorf("list pending chunks: %w", err)
	}
	chunkItems := make([]embed.Item, 0, len(chunks))
	for _, c := range chunks {
		chunkItems = append(chunkItems, embed.Item{ID: c.ID, Content: c.Content})
	}
	if len(chapterItems) == 0 && len(chunkItems) == 0 {
		return nil
	}

	stats := s.deps.Pipeline.Run(ctx, chapterItems, &chapterSink{svc: s})
	chunkStats := s.deps.Pipeline.Run(ctx, chunkItems, &chunkSink{svc: s})
	logutil.GetLogger(ctx).Info("embedding sweep finished",
		zap.Int("chapters_done", stats.Done),
		zap.Int("chapters_failed", stats.Failed),
		zap.Int("chunks_done", chunkStats.Done),
		zap.Int("chunks_failed", chunkStats.Failed))

	for bookID := range bookIDs {
		if err := s.deps.Dispatcher.Submit(s.dedupBookTask(bookID)); err != nil {
			logutil.GetLogger(ctx).Warn("dedup task not queued",
				zap.String("book_id", bookID), zap.Error(err))
		}
	}
	return nil
}

// RescanDuplicates reruns duplicate detection for recently stored books.
// Group assignment is idempotent, so overlapping runs converge on the
// same grouping.
func (s *IngestService) RescanDuplicates(ctx context.Context, limit uint) error {
	books, err := s.deps.Books.List(ctx, limit, 0)
	if err != nil {
		return fmt.Errorf("list books: %w", err)
	}
	for _, book := range books {
		if book.ProcessingStatus != model.BookStatusCompleted {
			continue
		}
		if err := s.deps.Dedup.Run(ctx, book.ID); err != nil {
			logutil.GetLogger(ctx).Error("duplicate rescan failed",
				zap.String("book_id", book.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *IngestService) Progress(ctx context.Context, bookID string) (*model.BookProgress, error) {
	book, err := s.deps.Books.GetByID(ctx, bookID)
	if err != nil {
		return nil, err
	}
	progress, err := s.deps.Chapters.Progress(ctx, bookID)
	if err != nil {
		return nil, err
	}
	progress.ProcessingStatus = book.ProcessingStatus
	return progress, nil
}

func (s *IngestService) GetBook(ctx context.Context, bookID string) (*model.Book, error) {
	return s.deps.Books.GetByID(ctx, bookID)
}

func (s *IngestService) ListBooks(ctx context.Context, limit, offset uint) ([]model.Book, error) {
	return s.deps.Books.List(ctx, limit, offset)
}

type chapterSink struct {
	svc *IngestService
}

func (k *chapterSink) Commit(ctx context.Context, item embed.Item, vector []float32) error {
	if err := k.svc.deps.ChapterIndex.Insert(ctx, item.ID, vector); err != nil && !appErr.IsConflict(err) {
		return err
	}
	return k.svc.deps.Chapters.SetEmbedState(ctx, item.ID, model.EmbedStateDone)
}

func (k *chapterSink) Fail(ctx context.Context, item embed.Item, cause error) {
	logutil.GetLogger(ctx).Error("chapter embedding failed",
		zap.String("chapter_id", item.ID), zap.Error(cause))
	if err := k.svc.deps.Chapters.SetEmbedState(ctx, item.ID, model.EmbedStateFailed); err != nil {
		logutil.GetLogger(ctx).Error("mark chapter failed", zap.String("chapter_id", item.ID), zap.Error(err))
	}
}

type chunkSink struct {
	svc *IngestService
}

func (k *chunkSink) Commit(ctx context.Context, item embed.Item, vector []float32) error {
	if err := k.svc.deps.ChunkIndex.Insert(ctx, item.ID, vector); err != nil && !appErr.IsConflict(err) {
		return err
	}
	return k.svc.deps.Chunks.SetEmbedState(ctx, item.ID, model.EmbedStateDone)
}

func (k *chunkSink) Fail(ctx context.Context, item embed.Item, cause error) {
	logutil.GetLogger(ctx).Error("chunk embedding failed",
		zap.String("chunk_id", item.ID), zap.Error(cause))
	if err := k.svc.deps.Chunks.SetEmbedState(ctx, item.ID, model.EmbedStateFailed); err != nil {
		logutil.GetLogger(ctx).Error("mark chunk failed", zap.String("chunk_id", item.ID), zap.Error(err))
	}
}
