package network

import (
	"context"
	"time"
)

type turnResult struct {
	msg       *TurnMessage
	err       error
	cancelled bool
}

// AwaitTurn waits for the other player's turn until ctx is done.
//
// A receiving goroutine and a goroutine watching ctx race to deliver the
// first result. When ctx wins, the receiver is told to stop by expiring the
// read deadline and AwaitTurn waits for it to return, so nothing is left
// reading the connection. A turn that arrived anyway is returned. Otherwise
// ctx.Err() is returned and the connection may be mid frame, so it has to be
// closed.
func (c *Conn) AwaitTurn(ctx context.Context) (*TurnMessage, error) {
	results := make(chan turnResult, 2)
	received := make(chan struct{})

	go func() {
		defer close(received)
		m, err := c.RecvTurn()
		results <- turnResult{msg: m, err: err}
	}()
	go func() {
		select {
		case <-ctx.Done():
			results <- turnResult{err: ctx.Err(), cancelled: true}
		case <-received:
		}
	}()

	res := <-results
	if !res.cancelled {
		return res.msg, res.err
	}

	_ = c.conn.SetReadDeadline(time.Now())
	recv := <-results
	_ = c.conn.SetReadDeadline(time.Time{})

	if recv.err == nil {
		return recv.msg, nil
	}
	return nil, res.err
}
