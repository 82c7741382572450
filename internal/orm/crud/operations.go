// Package crud persists entity instances and runs criteria queries against PostgreSQL.
//
// The Gateway holds no per-query state and may be shared across goroutines. Statements run on the
// transaction carried by the context when there is one, and on the gateway's database otherwise.
package crud

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/query"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/transaction"
)

// DB is the SQL backend used by the gateway. *sql.DB, *sql.Tx and transaction.Transaction satisfy it.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Params carries the paging, ordering and tombstone options of a find
type Params struct {
	OrderBy        []Order
	Limit          int
	Offset         int
	IncludeDeleted bool
}

// Order is one ORDER BY term
type Order struct {
	Field     string
	Direction string
}

// Record is one result row keyed by column name
type Record map[string]interface{}

// Gateway executes CRUD statements for entity instances
type Gateway struct {
	db       DB
	resolver query.EntityResolver
	logger   *zap.Logger
}

// NewGateway creates a gateway. The resolver is used for join synthesis and referential checks.
func NewGateway(db DB, resolver query.EntityResolver, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		db:       db,
		resolver: resolver,
		logger:   logger,
	}
}

func (g *Gateway) exec(ctx context.Context) transaction.Executor {
	return transaction.ExecutorFrom(ctx, g.db)
}

func (g *Gateway) builder(def *schema.EntityDefinition) *query.Builder {
	return query.NewBuilder(def, g.resolver, g.logger)
}
