package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/bridgarr/bridgarr/internal/errors"
)

const (
	jobsBucket     = "jobs"
	metadataBucket = "metadata"
	schemaVersion  = 1
)

// Store persists jobs in a bbolt database keyed by synthetic id.
type Store struct {
	db *bbolt.DB
}

func NewStore(dbPath string) (*Store, error) {
	options := &bbolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bbolt.Open(dbPath, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db: db,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initialize sets up buckets and schema
func (s *Store) initialize() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(jobsBucket))
		if err != nil {
			return fmt.Errorf("failed to create jobs bucket: %w", err)
		}

		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}

		versionBytes := []byte(fmt.Sprintf("%d", schemaVersion))
		if err := meta.Put([]byte("schema_version"), versionBytes); err != nil {
			return fmt.Errorf("failed to store schema version: %w", err)
		}

		return nil
	})
}

// Save persists a job to storage.
func (s *Store) Save(job *Job) error {
	if job == nil {
		return errors.New("cannot save nil job")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(jobsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", jobsBucket)
		}

		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		if err := bucket.Put([]byte(job.ID), data); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}

		return nil
	})
}

// FindAll retrieves all persisted jobs. Single-job reads never hit disk:
// the registry's in-memory table is authoritative after startup.
func (s *Store) FindAll() ([]*Job, error) {
	var jobs []*Job

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(jobsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", jobsBucket)
		}

		return bucket.ForEach(func(k, v []byte) error {
			job := &Job{}

			if err := json.Unmarshal(v, job); err != nil {
				return fmt.Errorf("failed to unmarshal job: %w", err)
			}

			jobs = append(jobs, job)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return jobs, nil
}

// Delete removes a job record permanently.
func (s *Store) Delete(id string) error {
	if id == "" {
		return errors.New("job ID cannot be empty")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(jobsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", jobsBucket)
		}

		if bucket.Get([]byte(id)) == nil {
			return errors.ErrJobNotFound
		}

		return bucket.Delete([]byte(id))
	})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
