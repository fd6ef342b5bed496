package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/curamed/medisync/internal/bus"
	"github.com/curamed/medisync/internal/remote"
	"github.com/curamed/medisync/internal/store"
	"go.uber.org/zap"
)

// drainQueue uploads every queued operation in enqueue order, one at a
// time. A single entry failing bumps its retry count and the drain moves
// on; only a 401 aborts the whole cycle.
func (e *Engine) drainQueue(ctx context.Context, sum *Summary) error {
	ops, err := e.db.ListPendingOperations()
	if err != nil {
		return fmt.Errorf("list pending operations: %w", err)
	}

	for i := range ops {
		op := &ops[i]
		err := e.dispatch(ctx, op)
		if err == nil {
			if err := e.db.RemovePendingOperation(op.ID); err != nil {
				return fmt.Errorf("remove pending op %d: %w", op.ID, err)
			}
			sum.Uploaded++
			continue
		}

		if errors.Is(err, remote.ErrUnauthorized) {
			e.bus.Publish(bus.Event{Kind: bus.KindAuthRequired, Timestamp: time.Now()})
			return fmt.Errorf("upload op %d: %w", op.ID, err)
		}

		abandoned, bumpErr := e.db.BumpRetry(op.ID, e.opts.MaxRetries)
		if bumpErr != nil {
			return fmt.Errorf("bump retry for op %d: %w", op.ID, bumpErr)
		}
		if abandoned {
			sum.Abandoned++
			// No dead-letter table; the payload in the log is the only
			// record of the dropped mutation.
			e.logger.Warn("pending operation abandoned after repeated failures",
				zap.Int64("op_id", op.ID),
				zap.String("table", string(op.Table)),
				zap.String("op", string(op.Op)),
				zap.Int64("entity_id", op.EntityID),
				zap.ByteString("payload", op.Payload),
				zap.Error(err))
			e.bus.Publish(bus.Event{
				Kind:      bus.KindSyncOpAbandoned,
				Timestamp: time.Now(),
				Payload:   *op,
			})
		} else {
			sum.Failed++
			e.logger.Error("upload failed, will retry next cycle",
				zap.Int64("op_id", op.ID),
				zap.String("table", string(op.Table)),
				zap.String("op", string(op.Op)),
				zap.Error(err))
		}
	}

	return nil
}

// dispatch sends one queued operation to the endpoint implied by its table
// and operation kind. The table switch is exhaustive over the closed enum.
func (e *Engine) dispatch(ctx context.Context, op *store.PendingOperation) error {
	decoded, err := op.DecodePayload()
	if err != nil {
		return err
	}

	if op.Op == store.OpDelete {
		id, ok := decoded.(int64)
		if !ok {
			return fmt.Errorf("delete payload for op %d is %T, want id", op.ID, decoded)
		}
		switch op.Table {
		case store.TableOrders:
			return e.client.DeleteOrder(ctx, id)
		case store.TableCustomers:
			return e.client.DeleteCustomer(ctx, id)
		case store.TableProducts:
			return e.client.DeleteProduct(ctx, id)
		case store.TableNotifications:
			return e.client.DeleteNotification(ctx, id)
		case store.TableDistributors:
			return e.client.DeleteDistributor(ctx, id)
		default:
			return fmt.Errorf("unknown table %q in op %d", op.Table, op.ID)
		}
	}

	switch op.Table {
	case store.TableOrders:
		o := decoded.(*store.Order)
		if op.Op == store.OpCreate {
			created, err := e.client.CreateOrder(ctx, o)
			if err != nil {
				return err
			}
			return e.db.MarkOrderSynced(o.ID, created.ID)
		}
		if _, err := e.client.UpdateOrder(ctx, o); err != nil {
			return err
		}
		return e.db.MarkOrderSynced(o.ID, o.ID)
	case store.TableCustomers:
		c := decoded.(*store.Customer)
		if op.Op == store.OpCreate {
			_, err := e.client.CreateCustomer(ctx, c)
			return err
		}
		_, err := e.client.UpdateCustomer(ctx, c)
		return err
	case store.TableProducts:
		p := decoded.(*store.Product)
		if op.Op == store.OpCreate {
			_, err := e.client.CreateProduct(ctx, p)
			return err
		}
		_, err := e.client.UpdateProduct(ctx, p)
		return err
	case store.TableNotifications:
		n := decoded.(*store.Notification)
		if op.Op == store.OpCreate {
			_, err := e.client.CreateNotification(ctx, n)
			return err
		}
		_, err := e.client.UpdateNotification(ctx, n)
		return err
	case store.TableDistributors:
		d := decoded.(*store.Distributor)
		if op.Op == store.OpCreate {
			_, err := e.client.CreateDistributor(ctx, d)
			return err
		}
		_, err := e.client.UpdateDistributor(ctx, d)
		return err
	default:
		return fmt.Errorf("unknown table %q in op %d", op.Table, op.ID)
	}
}
