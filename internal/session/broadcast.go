package session

// Subscribe returns a channel that receives a snapshot after every state
// change, and a function to stop receiving. A slow reader only ever sees the
// latest snapshot.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}

	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}
}

func (c *Controller) publish() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.closed || len(c.subs) == 0 {
		return
	}

	snap := c.Snapshot()
	for ch := range c.subs {
		select {
		case ch <- snap:
		default:
			// drop the stale snapshot and replace it
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Close stops the notification timer and closes every subscriber channel.
// Actions still in flight finish, but their results are no longer broadcast.
func (c *Controller) Close() {
	c.unsubscribe()
	c.queue.Close()

	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for ch := range c.subs {
		delete(c.subs, ch)
		close(ch)
	}
}
