package telegram

import (
	"context"
	"sync"

	"github.com/gotd/td/session"
)

// blobStorage реализует session.Storage поверх блоба аккаунта. Начальное
// содержимое загружается из хранилища аккаунтов; всё, что gotd записывает в
// процессе работы, остаётся в памяти и доступно через Bytes для сохранения.
type blobStorage struct {
	mu   sync.Mutex
	data []byte
}

var _ session.Storage = (*blobStorage)(nil)

// newBlobStorage создает хранилище сессии, заполненное блобом аккаунта.
func newBlobStorage(blob []byte) *blobStorage {
	s := &blobStorage{}
	if len(blob) > 0 {
		s.data = append([]byte(nil), blob...)
	}
	return s
}

// LoadSession реализует session.Storage.
func (s *blobStorage) LoadSession(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.data) == 0 {
		return nil, session.ErrNotFound
	}
	return append([]byte(nil), s.data...), nil
}

// StoreSession реализует session.Storage.
func (s *blobStorage) StoreSession(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = append([]byte(nil), data...)
	return nil
}

// Bytes возвращает копию последней сериализованной сессии.
func (s *blobStorage) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.data) == 0 {
		return nil
	}
	return append([]byte(nil), s.data...)
}
