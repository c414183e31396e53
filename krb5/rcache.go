// SPDX-License-Identifier: Apache-2.0

package krb5

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/blake2b"

	"github.com/jcmturner/gokrb5/v8/messages"
)

// ReplayID identifies one authenticator.
type ReplayID [blake2b.Size256]byte

// ReplayCache records the authenticators an acceptor has seen so that a captured AP-REQ cannot
// be used twice within the clock skew window.
type ReplayCache interface {
	// Seen records id until expiry and reports whether it was already present.  Entries that
	// expired before now are ignored.
	Seen(id ReplayID, expiry, now time.Time) (bool, error)
}

// replayID hashes the fields that make an authenticator unique: its timestamp, the client and
// the ticket it was sent with.
func replayID(apreq *messages.APReq) ReplayID {
	h, _ := blake2b.New256(nil)

	var b [8]byte
	field := func(v []byte) {
		binary.BigEndian.PutUint32(b[:4], uint32(len(v)))
		h.Write(b[:4])
		h.Write(v)
	}

	binary.BigEndian.PutUint64(b[:], uint64(apreq.Authenticator.CTime.Unix()))
	h.Write(b[:])
	binary.BigEndian.PutUint32(b[:4], uint32(apreq.Authenticator.Cusec))
	h.Write(b[:4])

	field([]byte(apreq.Authenticator.CName.PrincipalNameString()))
	field([]byte(apreq.Authenticator.CRealm))
	field(apreq.Ticket.EncPart.Cipher)

	var id ReplayID
	h.Sum(id[:0])
	return id
}

// MemoryReplayCache is a process-local ReplayCache.
type MemoryReplayCache struct {
	mu        sync.Mutex
	entries   map[ReplayID]time.Time
	lastPurge time.Time
}

// NewMemoryReplayCache returns an empty in-memory replay cache.
func NewMemoryReplayCache() *MemoryReplayCache {
	return &MemoryReplayCache{entries: make(map[ReplayID]time.Time)}
}

const purgeInterval = time.Minute

func (c *MemoryReplayCache) Seen(id ReplayID, expiry, now time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastPurge) > purgeInterval {
		for k, exp := range c.entries {
			if exp.Before(now) {
				delete(c.entries, k)
			}
		}
		c.lastPurge = now
	}

	if exp, ok := c.entries[id]; ok && !exp.Before(now) {
		return true, nil
	}

	c.entries[id] = expiry
	return false, nil
}

// Len returns the number of entries held, including expired entries not yet purged.
func (c *MemoryReplayCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

const (
	rcacheBucket         = "rcache"
	rcacheConnectTimeout = 5 * time.Second
)

// BoltReplayCache is a ReplayCache kept in a bbolt database file, shared by every process that
// opens the same path.
type BoltReplayCache struct {
	dbpath string
}

// NewBoltReplayCache creates the database at dbpath if needed.
func NewBoltReplayCache(dbpath string) (*BoltReplayCache, error) {
	db, err := bolt.Open(dbpath, 0600, &bolt.Options{Timeout: rcacheConnectTimeout})
	if err != nil {
		return nil, fmt.Errorf("krb5: opening replay cache %s: %w", dbpath, err)
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(rcacheBucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("krb5: initializing replay cache %s: %w", dbpath, err)
	}

	return &BoltReplayCache{dbpath: dbpath}, nil
}

func (c *BoltReplayCache) Seen(id ReplayID, expiry, now time.Time) (bool, error) {
	db, err := bolt.Open(c.dbpath, 0600, &bolt.Options{Timeout: rcacheConnectTimeout})
	if err != nil {
		return false, fmt.Errorf("krb5: opening replay cache %s: %w", c.dbpath, err)
	}
	defer db.Close()

	var seen bool
	err = db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(rcacheBucket))
		if bkt == nil {
			return errors.New("missing replay cache bucket")
		}

		if v := bkt.Get(id[:]); len(v) == 8 {
			if exp := time.Unix(0, int64(binary.BigEndian.Uint64(v))); !exp.Before(now) {
				seen = true
				return nil
			}
		}

		if err := purgeExpired(bkt, now); err != nil {
			return err
		}

		var v [8]byte
		binary.BigEndian.PutUint64(v[:], uint64(expiry.UnixNano()))
		return bkt.Put(id[:], v[:])
	})
	if err != nil {
		return false, fmt.Errorf("krb5: updating replay cache %s: %w", c.dbpath, err)
	}

	return seen, nil
}

func purgeExpired(bkt *bolt.Bucket, now time.Time) error {
	var expired [][]byte
	err := bkt.ForEach(func(k, v []byte) error {
		if len(v) == 8 && time.Unix(0, int64(binary.BigEndian.Uint64(v))).Before(now) {
			expired = append(expired, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, k := range expired {
		if err := bkt.Delete(k); err != nil {
			return err
		}
	}

	return nil
}
