// Package loader ingests dm+d release files into the relational store.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	applog "tariffmaster/internal/log"
	"tariffmaster/internal/source"
	"tariffmaster/internal/store"
	"tariffmaster/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Mode selects how a load treats existing rows.
type Mode string

const (
	// ModeFullRebuild clears all reference data and loads every kind.
	ModeFullRebuild Mode = "full_rebuild"
	// ModeIncremental upserts rows by identity and leaves the rest alone.
	ModeIncremental Mode = "incremental"
)

const defaultBatchSize = 1000

// Options tunes a Loader.
type Options struct {
	Mode      Mode
	BatchSize int
	// Workers bounds how many sources of one level are parsed at once.
	Workers int
	// SkipUnchanged skips sources whose fingerprint matches the last
	// incremental or full load.
	SkipUnchanged bool
	RunID         uuid.UUID
}

// Rejection is a record left out of the load.
type Rejection struct {
	Kind   source.Kind `json:"kind"`
	ID     string      `json:"id"`
	Field  string      `json:"field,omitempty"`
	Reason string      `json:"reason"`
}

// Report summarises one load.
type Report struct {
	Mode     Mode                `json:"mode"`
	Loaded   map[source.Kind]int `json:"loaded"`
	Attached map[string]int      `json:"attached,omitempty"`
	Rejected []Rejection         `json:"rejected,omitempty"`
	Skipped  []source.Kind       `json:"skipped,omitempty"`
}

// RejectedCount is the number of records left out.
func (r Report) RejectedCount() int {
	return len(r.Rejected)
}

// Loader ingests release files.
type Loader struct {
	store *store.Store
	opts  Options
	now   func() time.Time
}

// New returns a Loader writing into s.
func New(s *store.Store, opts Options) *Loader {
	if opts.Mode == "" {
		opts.Mode = ModeFullRebuild
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Loader{store: s, opts: opts, now: time.Now}
}

type fingerprinted struct {
	source.Source
	fingerprint source.Fingerprint
}

// Load ingests sources in dependency order inside a single transaction. A
// failed load leaves the store exactly as it was. Malformed records are
// skipped and reported, together with the sections and dependants of the
// records they would have written; a record whose parent is otherwise absent
// aborts the load with a *ReferenceError.
func (l *Loader) Load(ctx context.Context, sources []source.Source) (Report, error) {
	report := Report{
		Mode:     l.opts.Mode,
		Loaded:   map[source.Kind]int{},
		Attached: map[string]int{},
	}

	byKind, err := l.prepare(sources)
	if err != nil {
		return report, err
	}

	applog.Info(ctx, "load started", "mode", l.opts.Mode, "sources", len(byKind))

	err = l.store.Transaction(ctx, func(tx *gorm.DB) error {
		if l.opts.Mode == ModeFullRebuild {
			if err := store.ClearReference(tx); err != nil {
				return err
			}
		}

		if l.opts.Mode == ModeIncremental && l.opts.SkipUnchanged {
			for kind, src := range byKind {
				digest, ok, err := store.LastFingerprint(tx, string(kind))
				if err != nil {
					return err
				}
				if ok && digest == src.fingerprint.Digest {
					applog.Info(ctx, "source unchanged, skipping", "kind", kind, "path", src.Path)
					report.Skipped = append(report.Skipped, kind)
					delete(byKind, kind)
				}
			}
		}

		var mu sync.Mutex
		rejected := rejectedSet{}
		for _, level := range source.Levels {
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(l.opts.Workers)
			for _, kind := range level {
				src, ok := byKind[kind]
				if !ok {
					continue
				}
				g.Go(func() error {
					return l.loadSource(gctx, tx, &mu, src.Source, &report, rejected)
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
		}

		loadedAt := l.now().UTC()
		for _, kind := range source.Kinds() {
			src, ok := byKind[kind]
			if !ok {
				continue
			}
			file := models.SourceFile{
				Kind:     string(kind),
				Path:     src.Path,
				Digest:   src.fingerprint.Digest,
				Size:     src.fingerprint.Size,
				RunID:    l.opts.RunID,
				LoadedAt: loadedAt,
			}
			if err := store.RecordSourceFile(tx, file); err != nil {
				return err
			}
		}
		return nil
	})

	sortReport(&report)
	if err != nil {
		applog.Error(ctx, "load failed", "mode", l.opts.Mode, "error", err)
		return report, err
	}

	applog.Info(ctx, "load finished",
		"mode", l.opts.Mode,
		"rejected", len(report.Rejected),
		"skipped", len(report.Skipped),
	)
	return report, nil
}

func (l *Loader) prepare(sources []source.Source) (map[source.Kind]fingerprinted, error) {
	byKind := make(map[source.Kind]fingerprinted, len(sources))
	for _, src := range sources {
		if !src.Kind.Valid() {
			return nil, fmt.Errorf("unknown source kind %q", src.Kind)
		}
		if _, dup := byKind[src.Kind]; dup {
			return nil, fmt.Errorf("duplicate %s source %s", src.Kind, src.Path)
		}
		fp, err := src.Fingerprint()
		if err != nil {
			return nil, err
		}
		byKind[src.Kind] = fingerprinted{Source: src, fingerprint: fp}
	}

	if l.opts.Mode == ModeFullRebuild {
		for _, kind := range source.Kinds() {
			if _, ok := byKind[kind]; !ok {
				return nil, fmt.Errorf("%w: %s (%s)", ErrMissingSource, kind, kind.FileName())
			}
		}
	}
	return byKind, nil
}

// rejectedSet holds the identities left out of the current load, by kind.
// A record referring to one of them is left out as well.
type rejectedSet map[source.Kind]map[string]struct{}

func (s rejectedSet) add(kind source.Kind, id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	if s[kind] == nil {
		s[kind] = map[string]struct{}{}
	}
	s[kind][id] = struct{}{}
}

// blocking returns the first reference of rec that names a rejected record.
func (s rejectedSet) blocking(rec source.Record) (source.Reference, bool) {
	dep, ok := rec.(source.Dependent)
	if !ok {
		return source.Reference{}, false
	}
	for _, ref := range dep.References() {
		if _, gone := s[ref.Kind][ref.ID]; gone {
			return ref, true
		}
	}
	return source.Reference{}, false
}

// loadSource streams one file into the transaction. Parsing runs
// concurrently with other sources; writes, report updates and rejected hold
// mu.
func (l *Loader) loadSource(ctx context.Context, tx *gorm.DB, mu *sync.Mutex, src source.Source, report *Report, rejected rejectedSet) error {
	logger := applog.With("kind", src.Kind, "path", src.Path)
	logger.InfoContext(ctx, "loading source")

	f, err := src.Open()
	if err != nil {
		return fmt.Errorf("open %s source: %w", src.Kind, err)
	}
	defer f.Close()

	rd, err := source.NewReader(src.Kind, f)
	if err != nil {
		return err
	}
	sk, err := newSink(src.Kind, l.opts.BatchSize)
	if err != nil {
		return err
	}

	written := map[string]int{}
	flush := func(write func(*gorm.DB) (map[string]int, error)) error {
		mu.Lock()
		defer mu.Unlock()
		counts, err := write(tx.WithContext(ctx))
		if err != nil {
			return err
		}
		for name, n := range counts {
			written[name] += n
		}
		return nil
	}
	// reject reports rej. Unless the record is a section, its identity is
	// remembered so that its sections and dependants are rejected too.
	reject := func(rej Rejection, section bool) {
		logger.WarnContext(ctx, "record rejected", "id", rej.ID, "field", rej.Field, "reason", rej.Reason)
		mu.Lock()
		report.Rejected = append(report.Rejected, rej)
		if !section {
			rejected.add(rej.Kind, rej.ID)
		}
		mu.Unlock()
	}
	blocked := func(rec source.Record) (source.Reference, bool) {
		mu.Lock()
		defer mu.Unlock()
		return rejected.blocking(rec)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var recErr *source.RecordError
		if errors.As(err, &recErr) {
			reject(Rejection{Kind: recErr.Kind, ID: recErr.ID, Field: recErr.Field, Reason: recErr.Reason}, recErr.Section)
			continue
		}
		if err != nil {
			return err
		}

		_, section := rec.(source.Section)
		if ref, ok := blocked(rec); ok {
			reason := fmt.Sprintf("references rejected %s %s", ref.Kind, ref.ID)
			if section && ref.Kind == src.Kind {
				reason = "owner record rejected"
			}
			reject(Rejection{Kind: src.Kind, ID: rec.Identity(), Reason: reason}, section)
			continue
		}
		if err := sk.records(rec); err != nil {
			reject(Rejection{Kind: src.Kind, ID: rec.Identity(), Reason: err.Error()}, section)
			continue
		}
		if sk.full() {
			if err := flush(sk.flush); err != nil {
				return err
			}
		}
	}
	if err := flush(sk.close); err != nil {
		return err
	}

	mu.Lock()
	for name, n := range written {
		if name == string(src.Kind) {
			report.Loaded[src.Kind] += n
		} else {
			report.Attached[name] += n
		}
	}
	mu.Unlock()

	logger.InfoContext(ctx, "source loaded", "rows", written[string(src.Kind)])
	return nil
}

func sortReport(report *Report) {
	order := map[source.Kind]int{}
	for i, kind := range source.Kinds() {
		order[kind] = i
	}
	sort.SliceStable(report.Rejected, func(i, j int) bool {
		a, b := report.Rejected[i], report.Rejected[j]
		if a.Kind != b.Kind {
			return order[a.Kind] < order[b.Kind]
		}
		return a.ID < b.ID
	})
	sort.Slice(report.Skipped, func(i, j int) bool {
		return order[report.Skipped[i]] < order[report.Skipped[j]]
	})
}
