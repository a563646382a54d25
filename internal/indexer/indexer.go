// Package indexer loads corpus files into the local plays corpus: SQLite storage and
// the keyword index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/qexpand/internal/corpus"
	"github.com/hyperjump/qexpand/internal/keyword"
	"github.com/hyperjump/qexpand/internal/models"
	"github.com/hyperjump/qexpand/internal/storage"
	"go.uber.org/zap"
)

// syncPageSize is the number of plays read per page when rebuilding the keyword index.
const syncPageSize = 500

// Observer is notified of corpus changes.
type Observer interface {
	PlaysIndexed(n int)
	PlaysRemoved(n int)
}

// Indexer writes plays to storage and the keyword index.
type Indexer struct {
	storage      storage.Storage
	keywordIndex keyword.PlayIndex
	reader       *corpus.Reader
	observer     Observer
	logger       *zap.Logger // optional; when set, logs debug events
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (file indexed, source removed, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithObserver sets an observer for indexed and removed play counts.
func WithObserver(o Observer) IndexerOption {
	return func(idx *Indexer) { idx.observer = o }
}

// NewIndexer creates an indexer. reader may be nil; a default corpus reader is used.
func NewIndexer(storage storage.Storage, keywordIndex keyword.PlayIndex, reader *corpus.Reader, opts ...IndexerOption) *Indexer {
	if reader == nil {
		reader = corpus.NewReader()
	}
	idx := &Indexer{
		storage:      storage,
		keywordIndex: keywordIndex,
		reader:       reader,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexPlays normalizes plays and writes them to storage, then to the keyword index.
// Plays with an existing id are replaced.
func (idx *Indexer) IndexPlays(ctx context.Context, plays []*models.Play) error {
	if len(plays) == 0 {
		return nil
	}
	for _, p := range plays {
		preprocessPlay(p)
	}
	if err := idx.storage.BatchUpsertPlays(ctx, plays); err != nil {
		return fmt.Errorf("failed to store plays: %w", err)
	}
	if err := idx.keywordIndex.IndexBatch(ctx, plays); err != nil {
		return fmt.Errorf("failed to index keywords: %w", err)
	}
	if idx.observer != nil {
		idx.observer.PlaysIndexed(len(plays))
	}
	return nil
}

// IndexFile reads a corpus file and replaces every play previously loaded from it.
// Returns the number of plays indexed.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	if !corpus.Supported(absPath) {
		return 0, fmt.Errorf("%w: %s", corpus.ErrUnsupported, absPath)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return 0, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("not a regular file: %s", absPath)
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer indexing file", zap.String("path", absPath))
	}
	plays, err := idx.reader.Read(absPath)
	if err != nil {
		return 0, fmt.Errorf("read corpus: %w", err)
	}
	if _, err := idx.RemoveSource(ctx, absPath); err != nil {
		return 0, err
	}
	if err := idx.IndexPlays(ctx, plays); err != nil {
		return 0, err
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer file indexed", zap.String("path", absPath), zap.Int("plays", len(plays)))
	}
	return len(plays), nil
}

// IndexPath indexes a corpus file, or walks a directory recursively and indexes every
// supported file in it. Returns the number of plays indexed and the first error encountered.
func (idx *Indexer) IndexPath(ctx context.Context, path string) (n int, err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return 0, fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return idx.IndexFile(ctx, absPath)
	}
	err = filepath.WalkDir(absPath, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !corpus.Supported(p) {
			return nil
		}
		// Resolve symlinks so we only index regular files
		finfo, statErr := os.Stat(p)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		count, indexErr := idx.IndexFile(ctx, p)
		if indexErr != nil {
			return indexErr
		}
		n += count
		return nil
	})
	return n, err
}

// RemoveSource deletes every play loaded from path. Returns the number removed.
func (idx *Indexer) RemoveSource(ctx context.Context, path string) (int, error) {
	ids, err := idx.storage.DeletePlaysBySource(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("failed to delete plays of %s: %w", path, err)
	}
	for _, id := range ids {
		if err := idx.keywordIndex.Delete(ctx, id); err != nil {
			return 0, fmt.Errorf("failed to delete play %d from keyword index: %w", id, err)
		}
	}
	if len(ids) > 0 {
		if idx.observer != nil {
			idx.observer.PlaysRemoved(len(ids))
		}
		if idx.logger != nil {
			idx.logger.Debug("indexer source removed", zap.String("path", path), zap.Int("plays", len(ids)))
		}
	}
	return len(ids), nil
}

// DeletePlay removes a single play from the keyword index and storage.
func (idx *Indexer) DeletePlay(ctx context.Context, id int) error {
	if err := idx.keywordIndex.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete from keyword index: %w", err)
	}
	if err := idx.storage.DeletePlay(ctx, id); err != nil {
		return fmt.Errorf("failed to delete play: %w", err)
	}
	if idx.observer != nil {
		idx.observer.PlaysRemoved(1)
	}
	return nil
}

// SyncKeywordIndex repopulates an empty keyword index from storage, which happens when
// the index directory was removed while the database was kept. Returns the number of
// plays reindexed.
func (idx *Indexer) SyncKeywordIndex(ctx context.Context) (int, error) {
	count, err := idx.keywordIndex.DocCount()
	if err != nil {
		return 0, fmt.Errorf("keyword doc count: %w", err)
	}
	if count > 0 {
		return 0, nil
	}
	n := 0
	for offset := 0; ; offset += syncPageSize {
		page, err := idx.storage.ListPlays(ctx, offset, syncPageSize)
		if err != nil {
			return n, fmt.Errorf("list plays: %w", err)
		}
		if len(page) == 0 {
			break
		}
		if err := idx.keywordIndex.IndexBatch(ctx, page); err != nil {
			return n, fmt.Errorf("failed to index keywords: %w", err)
		}
		n += len(page)
		if len(page) < syncPageSize {
			break
		}
	}
	if n > 0 && idx.logger != nil {
		idx.logger.Info("keyword index rebuilt from storage", zap.Int("plays", n))
	}
	return n, nil
}

// IsUnsupported reports whether err was caused by a file without a corpus reader.
func IsUnsupported(err error) bool {
	return errors.Is(err, corpus.ErrUnsupported)
}
