// Package cache keeps a process-local projection of "what has been logged
// today" per (user, pet). It is a cost and UX optimization only: every storage
// failure degrades to a cache miss, and a miss must never be read as "nothing
// has been logged".
package cache

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pawtrack/pawtrack-backend/pkg/model"
	"go.uber.org/zap"
)

// ringCap bounds the per-medication timestamp rings. Only recent entries
// matter for duplicate and already-done decisions.
const ringCap = 8

const keyPrefix = "summary:"

// KV is the subset of the local key-value store the cache needs.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Keys(prefix string) ([]string, error)
}

// SessionFact is the increment PutAfterSession merges into today's entry.
type SessionFact struct {
	TreatmentType  model.TreatmentType
	MedicationName string
	At             time.Time
	Completed      bool
	DosageGiven    float64
	VolumeML       float64
}

// SummaryCache reads and writes day-stamped cache entries. All methods are
// safe for concurrent use.
type SummaryCache struct {
	kv     KV
	logger *zap.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// New creates a SummaryCache. now is injectable for tests; pass nil for
// time.Now.
func New(kv KV, logger *zap.Logger, now func() time.Time) *SummaryCache {
	if now == nil {
		now = time.Now
	}
	return &SummaryCache{kv: kv, logger: logger, now: now}
}

func entryKey(userID, petID, day string) string {
	return fmt.Sprintf("%s%s:%s:%s", keyPrefix, userID, petID, day)
}

// Get returns today's entry for (user, pet), or (nil, false) on a miss.
// An entry stamped with any other day is purged and reported as a miss.
func (c *SummaryCache) Get(userID, petID string) (*model.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(userID, petID)
}

func (c *SummaryCache) getLocked(userID, petID string) (*model.CacheEntry, bool) {
	today := model.DailyPeriodID(c.now())
	key := entryKey(userID, petID, today)

	raw, err := c.kv.Get(key)
	if err != nil {
		return nil, false
	}

	var entry model.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("discarding unreadable cache entry", zap.String("key", key), zap.Error(err))
		_ = c.kv.Delete(key)
		return nil, false
	}

	if entry.Day != today {
		_ = c.kv.Delete(key)
		return nil, false
	}

	return &entry, true
}

// PutAfterSession merges one confirmed session into today's entry. It never
// queries the remote store: it starts from the stored entry or from empty.
func (c *SummaryCache) PutAfterSession(userID, petID string, fact SessionFact) {
	c.mu.Lock()
	defer c.mu.Unlock()

	today := model.DailyPeriodID(c.now())
	entry, ok := c.getLocked(userID, petID)
	if !ok {
		entry = &model.CacheEntry{Day: today}
	}

	switch fact.TreatmentType {
	case model.TreatmentMedication:
		entry.MedicationSessionCount++
		entry.TotalMedicationDoses += fact.DosageGiven
		if entry.RecentMedicationTimes == nil {
			entry.RecentMedicationTimes = make(map[string][]time.Time)
		}
		entry.RecentMedicationTimes[fact.MedicationName] = appendRing(entry.RecentMedicationTimes[fact.MedicationName], fact.At)
		if fact.Completed {
			if entry.CompletedMedicationTimes == nil {
				entry.CompletedMedicationTimes = make(map[string][]time.Time)
			}
			entry.CompletedMedicationTimes[fact.MedicationName] = appendRing(entry.CompletedMedicationTimes[fact.MedicationName], fact.At)
		}
	case model.TreatmentFluid:
		entry.FluidSessionCount++
		entry.TotalFluidVolumeML += fact.VolumeML
	}

	c.write(entryKey(userID, petID, today), entry)
}

// PutAfterBulk replaces today's entry wholesale, after a bulk quick-log.
func (c *SummaryCache) PutAfterBulk(userID, petID string, entry *model.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry.Day = model.DailyPeriodID(c.now())
	c.write(entryKey(userID, petID, entry.Day), entry)
}

// Clear removes the cached entry for (user, pet), today and stale days alike.
func (c *SummaryCache) Clear(userID, petID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := fmt.Sprintf("%s%s:%s:", keyPrefix, userID, petID)
	keys, err := c.kv.Keys(prefix)
	if err != nil {
		return
	}
	for _, k := range keys {
		_ = c.kv.Delete(k)
	}
}

// InvalidateExpired purges every entry not stamped with today's date. Called
// at day rollover and at startup warm-up.
func (c *SummaryCache) InvalidateExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	today := model.DailyPeriodID(c.now())
	keys, err := c.kv.Keys(keyPrefix)
	if err != nil {
		return
	}
	for _, k := range keys {
		if !strings.HasSuffix(k, ":"+today) {
			_ = c.kv.Delete(k)
		}
	}
}

func (c *SummaryCache) write(key string, entry *model.CacheEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("failed to encode cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.kv.Set(key, raw); err != nil {
		c.logger.Warn("failed to write cache entry", zap.String("key", key), zap.Error(err))
	}
}

func appendRing(ring []time.Time, t time.Time) []time.Time {
	ring = append(ring, t)
	if len(ring) > ringCap {
		ring = ring[len(ring)-ringCap:]
	}
	return ring
}
