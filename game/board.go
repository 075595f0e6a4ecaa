// Package game holds the board snapshot exchanged between peers. The rules
// that change a board live with the front ends; this package only describes
// what goes over the wire and how two snapshots are compared.
package game

// BoardSize is the side length of a default board.
const BoardSize = 10

type ScorchState uint8

const (
	Empty ScorchState = iota
	Scorched
)

type Direction uint8

const (
	Up Direction = iota
	Down
	Left
	Right
)

type PlayerColor uint8

const (
	Blue PlayerColor = iota
	Cyan
	Yellow
	Green
	Magenta
)

// Vector is a position or offset on the board.
type Vector struct {
	_msgpack struct{} `msgpack:",as_array"`

	X int `msgpack:"x"`
	Y int `msgpack:"y"`
}

// Move is a step of Len tiles in direction Dir.
type Move struct {
	_msgpack struct{} `msgpack:",as_array"`

	Dir Direction `msgpack:"dir"`
	Len int       `msgpack:"len"`
}

type Player struct {
	_msgpack struct{} `msgpack:",as_array"`

	Pos   Vector      `msgpack:"pos"`
	Color PlayerColor `msgpack:"color"`
}

// Board is a snapshot of a game. Turn is the index of the player to move.
type Board struct {
	_msgpack struct{} `msgpack:",as_array"`

	Cells   [][]ScorchState `msgpack:"cells"`
	Players []Player        `msgpack:"players"`
	Turn    int             `msgpack:"turn"`
}

// NewBoard makes an empty size x size board with a player in opposite corners.
func NewBoard(size int) *Board {
	cells := make([][]ScorchState, size)
	for i := range cells {
		cells[i] = make([]ScorchState, size)
	}
	return &Board{
		Cells: cells,
		Players: []Player{
			{Pos: Vector{X: 0, Y: 0}, Color: Green},
			{Pos: Vector{X: size - 1, Y: size - 1}, Color: Yellow},
		},
	}
}

// Equal reports whether two snapshots describe the same game state. Peers use
// it to notice when their boards have diverged.
func (b *Board) Equal(other *Board) bool {
	if b == nil || other == nil {
		return b == other
	}
	if b.Turn != other.Turn || len(b.Cells) != len(other.Cells) || len(b.Players) != len(other.Players) {
		return false
	}
	for i, row := range b.Cells {
		if len(row) != len(other.Cells[i]) {
			return false
		}
		for j, cell := range row {
			if cell != other.Cells[i][j] {
				return false
			}
		}
	}
	for i, p := range b.Players {
		if p.Pos != other.Players[i].Pos || p.Color != other.Players[i].Color {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the board.
func (b *Board) Clone() *Board {
	c := &Board{
		Cells:   make([][]ScorchState, len(b.Cells)),
		Players: append([]Player(nil), b.Players...),
		Turn:    b.Turn,
	}
	for i, row := range b.Cells {
		c.Cells[i] = append([]ScorchState(nil), row...)
	}
	return c
}
