package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/knolrep/internal/clock"
	"github.com/conorfennell/knolrep/internal/domain"
	"github.com/conorfennell/knolrep/internal/gitsource"
	"github.com/conorfennell/knolrep/internal/knol"
	"github.com/conorfennell/knolrep/internal/parser"
	"github.com/conorfennell/knolrep/internal/sm2"
	"github.com/conorfennell/knolrep/internal/storage"
)

// Introducer creates a fresh review state for a learner.
type Introducer interface {
	Introduce(ctx context.Context, key domain.StateKey) (sm2.ReviewState, error)
}

// Runner reconciles the stored cards with their sources.
type Runner struct {
	DB          *storage.DB
	Reviews     Introducer
	LearnerID   string
	ReposDir    string
	Concurrency int
	Clock       clock.Clock
	Log         *slog.Logger
	// Progress receives git clone/pull output. Optional.
	Progress io.Writer
}

// Report summarizes one source's reconciliation.
type Report struct {
	SourceID   int64
	Path       string
	Parsed     int
	Inserted   int
	Introduced int
	// Moved counts cards this source handed over to another source that
	// still contains them.
	Moved    int
	Orphaned int
	Errors   []error
}

// scan is the outcome of reading one source.
type scan struct {
	source storage.Source
	found  map[string]bool
	report Report
	err    error
}

// Run syncs every source, at most Concurrency at a time. A failing source
// does not stop the others; all failures are joined into the returned error.
//
// Sources are read first and only then are cards that left a source
// removed, so a card moved to another source keeps its review history.
func (r *Runner) Run(ctx context.Context) ([]Report, error) {
	r.Log.Info("starting sync for all sources")
	sources, err := r.DB.GetAllSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}
	if len(sources) == 0 {
		r.Log.Info("no sources configured, add one with: knolrep source add <path/or/url.git>")
		return nil, nil
	}

	if err := os.MkdirAll(r.ReposDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create repos directory: %w", err)
	}

	scans := make([]scan, len(sources))
	var g errgroup.Group
	g.SetLimit(max(1, r.Concurrency))
	for i, source := range sources {
		g.Go(func() error {
			scans[i] = r.scanSource(ctx, source)
			return nil
		})
	}
	_ = g.Wait()

	// Every hash still present in a readable source, with one of its sources.
	holders := make(map[string]int64)
	for _, sc := range scans {
		if sc.err != nil {
			continue
		}
		for hash := range sc.found {
			if _, ok := holders[hash]; !ok {
				holders[hash] = sc.source.ID
			}
		}
	}

	reports := make([]Report, len(scans))
	errs := make([]error, len(scans))
	for i := range scans {
		sc := &scans[i]
		if sc.err == nil {
			sc.err = r.settle(ctx, sc, holders)
		}
		reports[i] = sc.report
		if sc.err != nil {
			r.Log.Error("failed to sync source", "id", sc.source.ID, "path", sc.source.Path, "error", sc.err)
			errs[i] = fmt.Errorf("source %d (%s): %w", sc.source.ID, sc.source.Path, sc.err)
			continue
		}
		r.Log.Info("reconciliation complete",
			"source_id", sc.source.ID,
			"path", sc.source.Path,
			"parsed_cards", sc.report.Parsed,
			"inserted", sc.report.Inserted,
			"introduced", sc.report.Introduced,
			"moved", sc.report.Moved,
			"orphaned_deleted", sc.report.Orphaned,
			"errors", len(sc.report.Errors),
		)
	}

	r.Log.Info("sync complete", "sources", len(sources))
	return reports, errors.Join(errs...)
}

func (r *Runner) scanSource(ctx context.Context, source storage.Source) scan {
	sc := scan{source: source, report: Report{SourceID: source.ID, Path: source.Path}}
	log := r.Log.With("source_id", source.ID, "type", source.Type)
	log.Info("syncing source", "path", source.Path)

	dir := source.Path
	if source.Type == storage.SourceGit {
		localRepoPath, err := gitsource.LocalPath(r.ReposDir, source.Path)
		if err != nil {
			sc.err = err
			return sc
		}
		if err := gitsource.Sync(ctx, log, source.Path, localRepoPath, r.Progress); err != nil {
			sc.err = err
			return sc
		}
		dir = localRepoPath
	}

	sc.found, sc.err = r.read(ctx, &sc.report, dir)
	return sc
}

// read parses every markdown file under dir, stores cards that are not
// stored yet and introduces them to the learner. It returns the hashes of
// every card found.
func (r *Runner) read(ctx context.Context, rep *Report, dir string) (map[string]bool, error) {
	found := make(map[string]bool)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		fileCards, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			rep.Errors = append(rep.Errors, fmt.Errorf("parsing %s: %w", path, parseErr))
		}
		for _, card := range fileCards {
			card.Hash = knol.Hash(card)
			if found[card.Hash] {
				continue
			}
			found[card.Hash] = true
			rep.Parsed++
			if err := r.store(ctx, rep, rep.SourceID, card); err != nil {
				rep.Errors = append(rep.Errors, err)
			}
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("error walking directory %s: %w", dir, walkErr)
	}
	return found, nil
}

// settle deals with the cards a source owns but no longer contains. Each
// goes to another source holding it, or is deleted together with its
// review states when none does.
func (r *Runner) settle(ctx context.Context, sc *scan, holders map[string]int64) error {
	sourceID := sc.source.ID
	hashes, err := r.DB.GetCardHashesBySourceID(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("error getting cards for source %d: %w", sourceID, err)
	}
	for _, hash := range hashes {
		if sc.found[hash] {
			continue
		}
		if holder, ok := holders[hash]; ok {
			r.Log.Info("card moved to another source", "hash", hash, "from", sourceID, "to", holder)
			if err := r.DB.MoveCard(ctx, hash, holder); err != nil {
				r.Log.Warn("failed to move card", "hash", hash, "error", err)
				continue
			}
			sc.report.Moved++
			continue
		}
		r.Log.Info("orphaned card, deleting", "hash", hash)
		if err := r.DB.DeleteCardByHash(ctx, hash); err != nil {
			r.Log.Warn("failed to delete orphaned card", "hash", hash, "error", err)
			continue
		}
		sc.report.Orphaned++
	}

	if err := r.DB.UpdateSourceLastScanned(ctx, sourceID, r.Clock.Now()); err != nil {
		r.Log.Warn("failed to update last scanned for source", "source_id", sourceID, "error", err)
	}
	return nil
}

func (r *Runner) store(ctx context.Context, rep *Report, sourceID int64, card domain.Card) error {
	inserted, err := r.DB.InsertCard(ctx, card, sourceID, r.Clock.Now())
	if err != nil {
		return fmt.Errorf("db insert for %s: %w", card.Hash, err)
	}
	if inserted {
		r.Log.Debug("new card found, inserted", "hash", card.Hash)
		rep.Inserted++
	}

	if r.LearnerID == "" {
		return nil
	}
	_, err = r.Reviews.Introduce(ctx, domain.StateKey{LearnerID: r.LearnerID, CardHash: card.Hash})
	switch {
	case errors.Is(err, storage.ErrExists):
	case err != nil:
		return fmt.Errorf("introducing %s: %w", card.Hash, err)
	default:
		rep.Introduced++
	}
	return nil
}
