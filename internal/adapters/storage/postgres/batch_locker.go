package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"
	"time"
)

// BatchLocker serializa escrituras por lote entre réplicas con advisory
// locks de sesión. Cada lock retiene una conexión del pool hasta el unlock.
type BatchLocker struct {
	db *sql.DB
}

func NewBatchLocker(db *sql.DB) *BatchLocker {
	return &BatchLocker{db: db}
}

func (l *BatchLocker) LockBatch(ctx context.Context, batchID string) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	key := "custody:" + batchID
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, key); err != nil {
		_ = conn.Close()
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// el ctx del request puede estar cancelado; el unlock igual tiene que salir
			uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if _, err := conn.ExecContext(uctx, `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key); err != nil {
				// sin unlock explícito, descartamos la conexión: el lock muere con la sesión
				_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			}
			_ = conn.Close()
		})
	}, nil
}
