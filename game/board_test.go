package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestNewBoard(t *testing.T) {
	b := NewBoard(BoardSize)
	require.Len(t, b.Cells, BoardSize)
	for _, row := range b.Cells {
		require.Len(t, row, BoardSize)
	}
	require.Len(t, b.Players, 2)
	assert.Equal(t, Vector{X: 0, Y: 0}, b.Players[0].Pos)
	assert.Equal(t, Vector{X: BoardSize - 1, Y: BoardSize - 1}, b.Players[1].Pos)
	assert.Zero(t, b.Turn)
}

func TestBoardEqual(t *testing.T) {
	b := NewBoard(4)
	assert.True(t, b.Equal(NewBoard(4)))
	assert.False(t, b.Equal(NewBoard(5)))
	assert.False(t, b.Equal(nil))

	c := b.Clone()
	assert.True(t, b.Equal(c))

	c.Cells[1][2] = Scorched
	assert.False(t, b.Equal(c))
	assert.Equal(t, Empty, b.Cells[1][2], "clone must not share cells")

	c = b.Clone()
	c.Players[1].Pos.X--
	assert.False(t, b.Equal(c))

	c = b.Clone()
	c.Turn = 1
	assert.False(t, b.Equal(c))
}

func TestBoardMsgpack(t *testing.T) {
	b := NewBoard(BoardSize)
	b.Cells[3][4] = Scorched
	b.Players[0].Pos = Vector{X: 2, Y: 1}
	b.Turn = 1

	data, err := msgpack.Marshal(b)
	require.NoError(t, err)

	var decoded Board
	require.NoError(t, msgpack.Unmarshal(data, &decoded))
	assert.True(t, b.Equal(&decoded))
}
