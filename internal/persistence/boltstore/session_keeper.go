// Package boltstore keeps the capture session catalog in a bbolt file.
package boltstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/snowflk/blackbox/internal/persistence"
	"go.etcd.io/bbolt"
)

const DefaultFileName = "blackbox.db"

var sessionBucketKey = []byte("sessions")

type SessionKeeper struct {
	path  string
	store *bbolt.DB
}

// Open opens or creates the catalog file at path.
func Open(path string) (*SessionKeeper, error) {
	if persistence.CheckStringEmpty(path) {
		return nil, errors.Wrap(persistence.ErrConfig, "catalog path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create catalog directory")
		}
	}
	store, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open catalog %s", path)
	}
	err = store.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionBucketKey)
		return err
	})
	if err != nil {
		_ = store.Close()
		return nil, errors.Wrap(err, "failed to init catalog")
	}
	return &SessionKeeper{path: path, store: store}, nil
}

func (k *SessionKeeper) CreateSession(session persistence.Session) error {
	if err := persistence.ValidateSessionID(session.ID); err != nil {
		return err
	}
	if persistence.CheckStringEmpty(session.Path) {
		return errors.Wrap(persistence.ErrDataEmpty, "session log path")
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return k.store.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(sessionBucketKey)
		key := []byte(session.ID)
		if bkt.Get(key) != nil {
			return errors.Wrap(persistence.ErrSessionExists, session.ID)
		}
		return bkt.Put(key, payload)
	})
}

func (k *SessionKeeper) FinishSession(id string, stats persistence.SessionStats) error {
	if err := persistence.ValidateSessionID(id); err != nil {
		return err
	}
	return k.store.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(sessionBucketKey)
		session, err := getSession(bkt, id)
		if err != nil {
			return err
		}
		session.FinishedAt = time.Now().UTC()
		session.SessionStats = stats
		payload, err := json.Marshal(session)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(id), payload)
	})
}

func (k *SessionKeeper) GetSession(id string) (persistence.Session, error) {
	var session persistence.Session
	if err := persistence.ValidateSessionID(id); err != nil {
		return session, err
	}
	err := k.store.View(func(tx *bbolt.Tx) error {
		var err error
		session, err = getSession(tx.Bucket(sessionBucketKey), id)
		return err
	})
	return session, err
}

func (k *SessionKeeper) FindSessions(pattern persistence.SearchPattern) ([]persistence.Session, error) {
	matches := make([]persistence.Session, 0)
	err := k.store.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionBucketKey).ForEach(func(key, v []byte) error {
			var session persistence.Session
			if err := json.Unmarshal(v, &session); err != nil {
				return errors.Wrapf(err, "session %s", key)
			}
			if pattern.Match(session.Path) {
				matches = append(matches, session)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].StartedAt.Before(matches[j].StartedAt)
	})
	return matches, nil
}

func (k *SessionKeeper) Close() error {
	return k.store.Close()
}

func getSession(bkt *bbolt.Bucket, id string) (persistence.Session, error) {
	var session persistence.Session
	payload := bkt.Get([]byte(id))
	if payload == nil {
		return session, errors.Wrap(persistence.ErrSessionNotExist, id)
	}
	err := json.Unmarshal(payload, &session)
	return session, err
}
