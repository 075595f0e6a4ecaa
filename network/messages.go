package network

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/scorchedearth/scorched/game"
)

// InitialState is the first message the host sends after the handshake.
type InitialState struct {
	_msgpack struct{} `msgpack:",as_array"`

	Board *game.Board
}

// TurnMessage is a played turn: the board after the move, the move itself and
// the player who made it.
type TurnMessage struct {
	_msgpack struct{} `msgpack:",as_array"`

	Board  *game.Board
	Move   game.Move
	Player int
}

// Validate checks that the turn was played by the player expected to move.
func (m *TurnMessage) Validate(expected int) error {
	if m.Player != expected {
		return fmt.Errorf("%w: player %d moved, expected %d", ErrOutOfTurn, m.Player, expected)
	}
	if m.Board == nil {
		return fmt.Errorf("%w: turn without a board", ErrDecode)
	}
	return nil
}

// SendTurn encodes and sends a turn.
func (c *Conn) SendTurn(m *TurnMessage) error {
	return c.sendMessage(m)
}

// RecvTurn receives and decodes a turn.
func (c *Conn) RecvTurn() (*TurnMessage, error) {
	var m TurnMessage
	if err := c.recvMessage(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Conn) sendMessage(v any) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return c.Send(b)
}

func (c *Conn) recvMessage(v any) error {
	b, err := c.Recv()
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}
