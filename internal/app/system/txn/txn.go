// internal/app/system/txn/txn.go

// Package txn runs multi-document writes inside a MongoDB transaction when
// the server supports them, and falls back to plain sequential writes when
// it does not (standalone servers reject sessions/transactions).
//
// Callers that need rollback-like behavior on the fallback path must make
// their write order safe on its own: write the dependent rows first and
// flip the guarding flag last.
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Run executes fn within a transaction if the server supports them.
//
// When transactions are unavailable (standalone Mongo, common in dev and
// in small deployments), fn is re-run without a session. fn must therefore
// be written so a partial failure without a transaction is recoverable.
func Run(ctx context.Context, db *mongo.Database, log *zap.Logger, fn func(ctx context.Context) error) error {
	session, err := db.Client().StartSession()
	if err != nil {
		if IsNotSupported(err) {
			log.Debug("mongo sessions unavailable, running without transaction")
			return fn(ctx)
		}
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		log.Debug("mongo transactions unavailable, running without transaction")
		return fn(ctx)
	}
	return err
}

// IsNotSupported reports whether err indicates the server cannot run
// multi-document transactions (not a replica set member, sessions not
// supported, or an illegal-operation rejection).
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}

	var ce mongo.CommandError
	if errors.As(err, &ce) {
		// 20 IllegalOperation as "transaction numbers only on replica set",
		// 51 IllegalOperation, 263 OperationNotSupportedInTransaction.
		switch ce.Code {
		case 20, 51, 263:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	has := func(s string) bool { return strings.Contains(msg, s) }
	if has("transaction") && (has("replica set") || has("session") || has("illegal operation")) {
		return true
	}
	if has("session") && has("not supported") {
		return true
	}
	return false
}
