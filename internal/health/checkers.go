package health

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Escorpio024/scribe-ia-aurora/internal/evidence"
)

// Database returns a [Checker] that pings the encounter store's connection
// pool.
func Database(pool *pgxpool.Pool) Checker {
	return Checker{
		Name: "database",
		Check: func(ctx context.Context) error {
			return pool.Ping(ctx)
		},
	}
}

// Corpus returns a [Checker] that verifies the evidence corpus holds at least
// one document. Retrieval with an empty corpus silently returns nothing, so
// an empty snapshot usually means a broken bootstrap.
func Corpus(c *evidence.Corpus) Checker {
	return Checker{
		Name: "corpus",
		Check: func(_ context.Context) error {
			if c.Len() == 0 {
				return errors.New("corpus is empty")
			}
			return nil
		},
	}
}
