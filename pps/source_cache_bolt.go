package pps

import (
	"context"
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var cacheBucket = []byte("candidates")

// BoltCandidateCache is a CandidateProvider that persists another provider's
// listings in a bolt database. Entries older than the configured epoch are
// refetched; everything else is served from disk, so repeated solves against
// an unchanged index never touch the network.
type BoltCandidateCache struct {
	db    *bolt.DB
	up    CandidateProvider
	epoch time.Duration
}

// NewBoltCandidateCache opens (or creates) the cache database at path,
// fronting up. maxAge zero or negative means entries never expire.
func NewBoltCandidateCache(path string, up CandidateProvider, maxAge time.Duration) (*BoltCandidateCache, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening candidate cache %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cacheBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initializing candidate cache")
	}

	return &BoltCandidateCache{db: db, up: up, epoch: maxAge}, nil
}

func (c *BoltCandidateCache) Close() error {
	return c.db.Close()
}

type cacheEntry struct {
	TS    time.Time      `json:"ts"`
	Cands []rawCandidate `json:"candidates"`
}

// rawCandidate is the serialized form of a Candidate. Requirements round-trip
// through their string grammar.
type rawCandidate struct {
	Version  string   `json:"version"`
	Requires []string `json:"requires,omitempty"`
}

func cacheKey(name PackageName, source Source) []byte {
	return []byte(string(name) + "\x00" + source.String())
}

func (c *BoltCandidateCache) ListCandidates(ctx context.Context, name PackageName, source Source) ([]Candidate, error) {
	key := cacheKey(name, source)

	var entry *cacheEntry
	c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(cacheBucket).Get(key)
		if raw == nil {
			return nil
		}
		var e cacheEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			// A corrupt entry is treated as a miss and overwritten.
			return nil
		}
		entry = &e
		return nil
	})

	if entry != nil && (c.epoch <= 0 || time.Since(entry.TS) < c.epoch) {
		return decodeCandidates(entry.Cands)
	}

	cands, err := c.up.ListCandidates(ctx, name, source)
	if err != nil {
		return nil, err
	}

	if werr := c.store(key, cands); werr != nil {
		return nil, werr
	}
	return cands, nil
}

func (c *BoltCandidateCache) store(key []byte, cands []Candidate) error {
	entry := cacheEntry{TS: time.Now(), Cands: make([]rawCandidate, len(cands))}
	for i, cand := range cands {
		rc := rawCandidate{Version: cand.Version.String()}
		for _, req := range cand.Requirements {
			rc.Requires = append(rc.Requires, req.String())
		}
		entry.Cands[i] = rc
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "encoding cache entry")
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(cacheBucket).Put(key, raw)
	})
}

func decodeCandidates(raws []rawCandidate) ([]Candidate, error) {
	cands := make([]Candidate, len(raws))
	for i, rc := range raws {
		v, err := NewVersion(rc.Version)
		if err != nil {
			return nil, errors.Wrapf(err, "cached version %q", rc.Version)
		}
		cand := Candidate{Version: v}
		for _, rs := range rc.Requires {
			req, err := ParseRequirement(rs)
			if err != nil {
				return nil, errors.Wrapf(err, "cached requirement %q", rs)
			}
			cand.Requirements = append(cand.Requirements, req)
		}
		cands[i] = cand
	}
	return cands, nil
}
