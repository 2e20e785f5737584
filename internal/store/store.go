// Package store — адаптер персистентности поверх Postgres.
// Схему считаем данной (миграции живут снаружи), контракт — методы ниже.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"signal_bot/pkg/db"
	"signal_bot/pkg/logger"
)

// ErrDuplicate — повторная вставка свечи по ключу (symbol_id, timeframe,
// open_time). Для вызывающих это успех, а не ошибка.
var ErrDuplicate = errors.New("duplicate key")

const (
	retryAttempts = 3
	retryBaseWait = 200 * time.Millisecond
)

type Store struct {
	tm *db.PgTxManager

	mu        sync.Mutex
	symbolIDs map[string]int64
}

func New(tm *db.PgTxManager) *Store {
	return &Store{
		tm:        tm,
		symbolIDs: make(map[string]int64),
	}
}

func (s *Store) Close() {
	s.tm.Close()
}

// withRetry — транзиентные ошибки стора ретраим с растущей паузой.
// Дубликат ключа ретраить бессмысленно, отдаём сразу.
func withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	wait := retryBaseWait
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if err = fn(); err == nil || errors.Is(err, ErrDuplicate) {
			return err
		}
		if attempt == retryAttempts-1 {
			break
		}
		logger.Warn("store: %s попытка %d: %v", op, attempt+1, err)
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), op)
		case <-time.After(wait):
		}
		wait *= 2
	}
	return errors.Wrap(err, op)
}

// symbolID резолвит и кэширует id символа, создавая запись при первом
// обращении.
func (s *Store) symbolID(ctx context.Context, symbol string) (int64, error) {
	s.mu.Lock()
	if id, ok := s.symbolIDs[symbol]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	var id int64
	err := s.tm.Conn().QueryRow(ctx, `
		INSERT INTO symbols (symbol)
		VALUES ($1)
		ON CONFLICT (symbol) DO UPDATE SET symbol = EXCLUDED.symbol
		RETURNING id`, symbol).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "resolve symbol")
	}

	s.mu.Lock()
	s.symbolIDs[symbol] = id
	s.mu.Unlock()
	return id, nil
}
