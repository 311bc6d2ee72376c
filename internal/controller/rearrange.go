package controller

import "context"

// RearrangeDataStorage is the hook the original ECS left as an empty
// method body: rebalancing key ranges across the ring after a
// topology change. It is a no-op that returns nil; no control
// operation calls it, and it sends no MOVE_DATA/RECEIVE_DATA command.
// The ECS never reads or writes KV data itself.
func (c *Controller) RearrangeDataStorage(ctx context.Context) error {
	return nil
}

// TransferData is the companion hook for a single range handoff
// between two specific nodes. Like RearrangeDataStorage, it is a no-op
// that returns nil: it issues no MOVE_DATA/RECEIVE_DATA command and
// does not touch the ring.
func (c *Controller) TransferData(ctx context.Context, from, to string) error {
	return nil
}
