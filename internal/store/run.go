package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/eigerco/warpsim/internal/engine"
	"github.com/eigerco/warpsim/pkg/db"
	"github.com/eigerco/warpsim/pkg/log"
	"github.com/eigerco/warpsim/pkg/wire"
)

var ErrRunNotFound = errors.New("run not found")

// RunID orders runs by creation time.
type RunID string

func NewRunID() RunID {
	return RunID(xid.New().String())
}

// Report summarizes one finished launch.
type Report struct {
	ID             RunID       `json:"id"`
	Name           string      `json:"name"`
	ProgramHash    ProgramHash `json:"program"`
	Threads        uint32      `json:"threads"`
	Cycles         uint64      `json:"cycles"`
	Instructions   uint64      `json:"instructions"`
	Completed      bool        `json:"completed"`
	CacheHits      uint64      `json:"cache_hits"`
	CacheMisses    uint64      `json:"cache_misses"`
	Requests       uint64      `json:"requests"`
	Transactions   uint64      `json:"transactions"`
	DivergedIssues uint64      `json:"diverged_issues"`
	CreatedAt      time.Time   `json:"created_at"`
}

// NewReport fills a report from an engine's final statistics.
func NewReport(name string, program ProgramHash, threads int, stats engine.Stats) Report {
	return Report{
		Name:           name,
		ProgramHash:    program,
		Threads:        uint32(threads),
		Cycles:         stats.Cycle,
		Instructions:   stats.Instructions,
		Completed:      stats.Halt == engine.Completed,
		CacheHits:      stats.Cache.Hits,
		CacheMisses:    stats.Cache.Misses,
		Requests:       stats.Memory.Requests,
		Transactions:   stats.Memory.Transactions,
		DivergedIssues: stats.Scheduler.DivergedIssues,
	}
}

// Runs keeps run reports.
type Runs struct {
	db  db.KVStore
	now func() time.Time
}

func NewRuns(kv db.KVStore) *Runs {
	return &Runs{db: kv, now: time.Now}
}

// Put assigns the report an id and creation time and stores it.
func (r *Runs) Put(report Report) (RunID, error) {
	report.ID = NewRunID()
	report.CreatedAt = r.now().UTC()

	b, err := wire.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode run report: %w", err)
	}
	if err := r.db.Put(makeKey(prefixRun, []byte(report.ID)), b); err != nil {
		return "", translate(err, nil)
	}
	log.Store.Debug().Str("run", string(report.ID)).Stringer("program", report.ProgramHash).Msg("run stored")
	return report.ID, nil
}

func (r *Runs) Get(id RunID) (Report, error) {
	b, err := r.db.Get(makeKey(prefixRun, []byte(id)))
	if err != nil {
		return Report{}, translate(err, ErrRunNotFound)
	}
	var report Report
	if err := wire.Unmarshal(b, &report); err != nil {
		return Report{}, fmt.Errorf("decode run report: %w", err)
	}
	return report, nil
}

// List returns every report, oldest first. Undecodable records are logged
// and skipped.
func (r *Runs) List() ([]Report, error) {
	prefix := []byte{prefixRun}
	iter, err := r.db.NewIterator(prefix, db.PrefixEnd(prefix))
	if err != nil {
		return nil, translate(err, nil)
	}
	defer iter.Close()

	var reports []Report
	for iter.Next() {
		b, err := iter.Value()
		if err != nil {
			log.Store.Warn().Err(err).Msg("read run report from iterator")
			continue
		}
		var report Report
		if err := wire.Unmarshal(b, &report); err != nil {
			log.Store.Warn().Err(err).Bytes("key", iter.Key()).Msg("decode run report")
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (r *Runs) Delete(id RunID) error {
	return translate(r.db.Delete(makeKey(prefixRun, []byte(id))), nil)
}

// Prune deletes all but the newest keep reports in one batch and returns
// how many it removed.
func (r *Runs) Prune(keep int) (int, error) {
	prefix := []byte{prefixRun}
	iter, err := r.db.NewIterator(prefix, db.PrefixEnd(prefix))
	if err != nil {
		return 0, translate(err, nil)
	}
	var keys [][]byte
	for iter.Next() {
		keys = append(keys, append([]byte(nil), iter.Key()...))
	}
	if err := iter.Close(); err != nil {
		return 0, translate(err, nil)
	}
	if len(keys) <= keep {
		return 0, nil
	}
	stale := keys[:len(keys)-max(keep, 0)]

	batch := r.db.NewBatch()
	defer batch.Close()
	for _, k := range stale {
		if err := batch.Delete(k); err != nil {
			return 0, translate(err, nil)
		}
	}
	if err := batch.Commit(); err != nil {
		return 0, translate(err, nil)
	}
	log.Store.Debug().Int("pruned", len(stale)).Msg("old run reports deleted")
	return len(stale), nil
}
