package main

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/scorchedearth/scorched/game"
	"github.com/scorchedearth/scorched/network"
)

// ErrDesync is returned when the board the other player sent doesn't match the
// one computed locally.
var ErrDesync = errors.New("scorched: boards out of sync")

// Session is one game against the other player.
type Session struct {
	cfg   Config
	conn  *network.Conn
	board *game.Board
}

// Run connects to the other player and plays the configured number of rounds.
func (s *Session) Run(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := s.conn.Close(); err != nil {
			log.Debugf("failed to close connection: %s", err)
		}
	}()

	me := s.conn.PlayerNum()
	other := 1 - me
	fmt.Println("Connected as player", me)

	for turn := 0; turn < 2*s.cfg.rounds; turn++ {
		if s.board.Turn == me {
			move := game.Move{Dir: game.Direction(turn % 4), Len: 1}
			s.board = applyTurn(s.board, me, move)
			err := s.conn.SendTurn(&network.TurnMessage{Board: s.board.Clone(), Move: move, Player: me})
			if err != nil {
				return fmt.Errorf("sending turn: %w", err)
			}
			fmt.Printf("(%d) you moved %d\n", turn, move.Dir)
			continue
		}

		fmt.Printf("(%d) waiting for the other player\n", turn)
		m, err := s.conn.AwaitTurn(ctx)
		if errors.Is(err, network.ErrPeerDisconnected) {
			fmt.Println("The other player left")
			return nil
		}
		if err != nil {
			return err
		}
		if err := m.Validate(other); err != nil {
			return err
		}

		expected := applyTurn(s.board, other, m.Move)
		if !expected.Equal(m.Board) {
			return ErrDesync
		}
		s.board = expected
		fmt.Printf("(%d) they moved %d\n", turn, m.Move.Dir)
	}

	fmt.Println("Played", s.cfg.rounds, "rounds")
	return nil
}

func (s *Session) connect(ctx context.Context) error {
	var err error
	if s.cfg.hosting {
		fmt.Println("Room ID:", string(s.cfg.secret))
		fmt.Println("Waiting for the other player to join...")
		s.board = game.NewBoard(game.BoardSize)
		s.conn, err = network.Host(ctx, s.cfg.relay, s.cfg.secret, s.board)
		return err
	}

	var state *network.InitialState
	s.conn, state, err = network.Join(ctx, s.cfg.relay, s.cfg.secret)
	if err != nil {
		return err
	}
	if state.Board == nil {
		_ = s.conn.Close()
		return fmt.Errorf("%w: no board in initial state", network.ErrDecode)
	}
	s.board = state.Board
	return nil
}

// applyTurn scorches the cell the player stands on, moves them and hands the
// turn over. Moves that would leave the board stop at the edge.
func applyTurn(b *game.Board, player int, move game.Move) *game.Board {
	next := b.Clone()
	size := len(next.Cells)
	p := &next.Players[player]
	next.Cells[p.Pos.Y][p.Pos.X] = game.Scorched

	switch move.Dir {
	case game.Up:
		p.Pos.Y -= move.Len
	case game.Down:
		p.Pos.Y += move.Len
	case game.Left:
		p.Pos.X -= move.Len
	case game.Right:
		p.Pos.X += move.Len
	}
	p.Pos.X = clamp(p.Pos.X, 0, size-1)
	p.Pos.Y = clamp(p.Pos.Y, 0, size-1)

	next.Turn = (next.Turn + 1) % len(next.Players)
	return next
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
