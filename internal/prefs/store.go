package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store is a namespaced string key-value store kept in a SQLite file.
type Store struct {
	db  *sqlx.DB
	log logr.Logger
}

type entry struct {
	Namespace string `db:"namespace"`
	Key       string `db:"name"`
	Value     string `db:"value"`
}

// InMemory opens a store that lives as long as the process.
const InMemory = ":memory:"

func Open(log logr.Logger, path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		log.Error(err, "Failed to connect to database", "dbType", "sqlite3", "dbName", path)
		return nil, fmt.Errorf("open preferences %s: %w", path, err)
	}
	if path == InMemory {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		db:  db,
		log: log.WithName("Store"),
	}
	if err := s.createTable(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createTable() error {
	schema := `
    CREATE TABLE IF NOT EXISTS preferences (
        namespace TEXT NOT NULL,
        name TEXT NOT NULL,
        value TEXT NOT NULL,
        PRIMARY KEY (namespace, name)
    );
`
	_, err := s.db.Exec(schema)
	if err != nil {
		s.log.Error(err, "Failed to execute create table query")
		return fmt.Errorf("create preferences table: %w", err)
	}
	s.log.V(1).Info("Created table")
	return nil
}

// Close closes the database connection & syncs it to persistent storage.
func (s *Store) Close() error {
	s.log.Info("Closing database connection")
	return s.db.Close()
}

// Namespace returns a view of the store restricted to one namespace, like the
// firmware Preferences.begin(name).
func (s *Store) Namespace(name string) *Namespace {
	return &Namespace{store: s, name: name}
}

type Namespace struct {
	store *Store
	name  string
}

func (n *Namespace) Name() string {
	return n.name
}

// GetString returns the value stored under key, or def when there is none
// or it cannot be read.
func (n *Namespace) GetString(ctx context.Context, key, def string) string {
	var e entry
	err := n.store.db.GetContext(ctx, &e, `SELECT * FROM preferences WHERE namespace = $1 AND name = $2`, n.name, key)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			n.store.log.Error(err, "Failed to read preference", "namespace", n.name, "key", key)
		}
		return def
	}
	return e.Value
}

const upsertPreference = `
    INSERT INTO preferences (namespace, name, value)
    VALUES (:namespace, :name, :value)
    ON CONFLICT(namespace, name) DO UPDATE SET value = excluded.value`

func (n *Namespace) PutString(ctx context.Context, key, value string) error {
	_, err := n.store.db.NamedExecContext(ctx, upsertPreference, entry{Namespace: n.name, Key: key, Value: value})
	if err != nil {
		n.store.log.Error(err, "Failed to write preference", "namespace", n.name, "key", key)
		return fmt.Errorf("write preference %s/%s: %w", n.name, key, err)
	}
	return nil
}

// PutAll writes every value in one transaction: either all keys are updated
// or none is.
func (n *Namespace) PutAll(ctx context.Context, values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return n.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, k := range keys {
			if _, err := tx.NamedExecContext(ctx, upsertPreference, entry{Namespace: n.name, Key: k, Value: values[k]}); err != nil {
				n.store.log.Error(err, "Failed to write preference", "namespace", n.name, "key", k)
				return fmt.Errorf("write preference %s/%s: %w", n.name, k, err)
			}
		}
		return nil
	})
}

func (n *Namespace) Remove(ctx context.Context, key string) error {
	return n.remove(ctx, n.store.db, key)
}

// RemoveAll deletes the keys in one transaction.
func (n *Namespace) RemoveAll(ctx context.Context, keys ...string) error {
	return n.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, k := range keys {
			if err := n.remove(ctx, tx, k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (n *Namespace) remove(ctx context.Context, db sqlx.ExecerContext, key string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM preferences WHERE namespace = $1 AND name = $2`, n.name, key)
	if err != nil {
		return fmt.Errorf("remove preference %s/%s: %w", n.name, key, err)
	}
	return nil
}

func (n *Namespace) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := n.store.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin preferences %s: %w", n.name, err)
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			n.store.log.Error(rerr, "Failed to roll back", "namespace", n.name)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit preferences %s: %w", n.name, err)
	}
	return nil
}

// Keys lists the keys present in the namespace, sorted.
func (n *Namespace) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := n.store.db.SelectContext(ctx, &keys, `SELECT name FROM preferences WHERE namespace = $1 ORDER BY name`, n.name)
	if err != nil {
		return nil, fmt.Errorf("list preferences %s: %w", n.name, err)
	}
	return keys, nil
}
