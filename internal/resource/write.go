package resource

import (
	"context"
	"fmt"
	"sync"

	"resourcegraph/internal/dbexec"
	"resourcegraph/internal/serializer"
	"resourcegraph/internal/store"
)

// txScope holds the transaction of one write operation.
type txScope struct {
	tx        dbexec.TxExecutor
	hasError  bool
	finalized bool
	mu        sync.Mutex
}

func newTxScope(tx dbexec.TxExecutor) *txScope {
	return &txScope{tx: tx}
}

func (ts *txScope) markError() {
	ts.mu.Lock()
	ts.hasError = true
	ts.mu.Unlock()
}

// finalize commits the transaction, or rolls it back when an error was
// marked. Only the first call has an effect; it reports whether the
// transaction committed.
func (ts *txScope) finalize() (bool, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.finalized {
		return false, nil
	}
	ts.finalized = true

	if ts.hasError {
		return false, ts.tx.Rollback()
	}
	if err := ts.tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// inTx runs fn in a fresh transaction. Any error from fn rolls the whole
// operation back, including statements that already succeeded.
func (s *Service) inTx(ctx context.Context, operation, collection string, fn func(*store.Session) error) error {
	tx, err := s.executor.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	scope := newTxScope(tx)

	fnErr := fn(s.store.Session(tx))
	if fnErr != nil {
		scope.markError()
	}
	committed, finErr := scope.finalize()
	s.metrics.RecordWrite(ctx, operation, collection, committed)

	if fnErr != nil {
		if finErr != nil {
			s.logger.Warn("rollback failed", "operation", operation, "collection", collection, "error", finErr)
		}
		return fnErr
	}
	if finErr != nil {
		return fmt.Errorf("commit transaction: %w", finErr)
	}
	return nil
}

// Create validates doc and inserts a new resource into collection. The
// response carries the stored resource rendered with dir.
func (s *Service) Create(ctx context.Context, collection string, doc map[string]any, dir serializer.Directive) (*Response, error) {
	var resp *Response
	err := s.observe(ctx, "create", collection, func(ctx context.Context) error {
		model, err := s.collection(collection)
		if err != nil {
			return err
		}
		if err := dir.Check(model); err != nil {
			return err
		}
		return s.inTx(ctx, "create", collection, func(sess *store.Session) error {
			inst, err := s.deserializer.DeserializeCreate(ctx, sess, model, doc)
			if err != nil {
				return err
			}
			stored, err := sess.Insert(ctx, inst)
			if err != nil {
				return err
			}
			out, err := s.render(ctx, sess, stored, dir)
			if err != nil {
				return err
			}
			resp = &Response{Data: out}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Update applies the attributes and relationships present in doc to the
// resource id. Absent members are left unchanged.
func (s *Service) Update(ctx context.Context, collection, id string, doc map[string]any, dir serializer.Directive) (*Response, error) {
	var resp *Response
	err := s.observe(ctx, "update", collection, func(ctx context.Context) error {
		model, err := s.collection(collection)
		if err != nil {
			return err
		}
		if err := dir.Check(model); err != nil {
			return err
		}
		key, err := store.ParseID(model, id)
		if err != nil {
			return err
		}
		return s.inTx(ctx, "update", collection, func(sess *store.Session) error {
			patch, err := s.deserializer.DeserializeUpdate(ctx, sess, model, id, doc)
			if err != nil {
				return err
			}
			stored, err := sess.Update(ctx, key, patch)
			if err != nil {
				return err
			}
			out, err := s.render(ctx, sess, stored, dir)
			if err != nil {
				return err
			}
			resp = &Response{Data: out}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Delete removes the resource id from collection.
func (s *Service) Delete(ctx context.Context, collection, id string) error {
	return s.observe(ctx, "delete", collection, func(ctx context.Context) error {
		model, err := s.collection(collection)
		if err != nil {
			return err
		}
		key, err := store.ParseID(model, id)
		if err != nil {
			return err
		}
		return s.inTx(ctx, "delete", collection, func(sess *store.Session) error {
			return sess.Delete(ctx, model, key)
		})
	})
}
