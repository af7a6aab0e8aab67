package store

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore 本地嵌入式成品儲存，單機部署用
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore 打開 badger 資料庫
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

// Write 寫入成品
func (s *BadgerStore) Write(_ context.Context, key ArtifactKey, data []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key.Path()), data)
	})
}

// Read 讀取成品
func (s *BadgerStore) Read(_ context.Context, key ArtifactKey) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key.Path()))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// List 以執行緒加任務前綴掃描所有成品鍵
func (s *BadgerStore) List(_ context.Context, threadID, taskID string) ([]ArtifactKey, error) {
	prefix := []byte(threadID + "/" + taskID + "/")
	var keys []ArtifactKey
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key, err := ParseArtifactPath(string(it.Item().KeyCopy(nil)))
			if err != nil {
				continue
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// DeleteTask 刪除任務的所有成品
func (s *BadgerStore) DeleteTask(ctx context.Context, threadID, taskID string) error {
	keys, err := s.List(ctx, threadID, taskID)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete([]byte(key.Path())); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close 關閉資料庫
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
