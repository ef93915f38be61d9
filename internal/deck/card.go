// internal/deck/card.go
package deck

import (
	"fmt"
	"strings"
)

// Color is a card color. ColorNone is used for wild cards, which carry no
// intrinsic color of their own; the table's active color stands in for them.
type Color int

const (
	ColorNone Color = iota
	Red
	Yellow
	Green
	Blue
)

// Colors lists the four playable colors in deck order.
var Colors = [4]Color{Red, Yellow, Green, Blue}

var colorNames = map[Color]string{
	Red:    "Red",
	Yellow: "Yellow",
	Green:  "Green",
	Blue:   "Blue",
}

func (c Color) String() string {
	if name, ok := colorNames[c]; ok {
		return name
	}
	return ""
}

// Initial returns the single-letter color code used in the card shorthand.
func (c Color) Initial() string {
	if c == ColorNone {
		return ""
	}
	return c.String()[:1]
}

// ColorFromString resolves a user-supplied color name ("Red", "red", "R") to a
// Color. Returns ColorNone and false for anything unrecognized.
func ColorFromString(s string) (Color, bool) {
	s = strings.TrimSpace(s)
	for color, name := range colorNames {
		if strings.EqualFold(s, name) || strings.EqualFold(s, name[:1]) {
			return color, true
		}
	}
	return ColorNone, false
}

// Kind is a card rank class. Number cards additionally carry a Value.
type Kind int

const (
	Number Kind = iota
	Skip
	DrawTwo
	Reverse
	Wild
	WildDrawFour
)

var kindNames = map[Kind]string{
	Number:       "number",
	Skip:         "skip",
	DrawTwo:      "drawTwo",
	Reverse:      "reverse",
	Wild:         "wild",
	WildDrawFour: "wildDrawFour",
}

func (k Kind) String() string { return kindNames[k] }

// SpecialScore is the point value of every non-number rank at end-of-game scoring.
const SpecialScore = 50

// Card is an immutable UNO card. Wild and WildDrawFour cards have ColorNone;
// everything else has one of the four colors. Value is only meaningful for
// Number cards.
type Card struct {
	Kind  Kind  `json:"kind"`
	Color Color `json:"color"`
	Value int   `json:"value"`
}

// Size is the number of cards in a full deck.
const Size = 108

// FromIndex constructs the card occupying deck slot i. The layout is fixed:
// indices 0-99 split into four color blocks of 25 (slots 0-9 are the single
// copies of 0-9, slots 10-18 the second copies of 1-9, slots 19-24 cycle
// Skip/DrawTwo/Reverse twice); 100-103 are the Wilds and 104-107 the
// WildDrawFours.
func FromIndex(i int) (Card, error) {
	if i < 0 || i >= Size {
		return Card{}, fmt.Errorf("deck index %d out of range [0,%d)", i, Size)
	}
	if i > 103 {
		return Card{Kind: WildDrawFour}, nil
	}
	if i > 99 {
		return Card{Kind: Wild}, nil
	}

	color := Colors[i/25]
	slot := i % 25

	switch {
	case slot < 10:
		return Card{Kind: Number, Color: color, Value: slot}, nil
	case slot < 19:
		return Card{Kind: Number, Color: color, Value: slot - 9}, nil
	default:
		kinds := [3]Kind{Skip, DrawTwo, Reverse}
		return Card{Kind: kinds[(slot-19)%3], Color: color}, nil
	}
}

// FromString parses the two-character shorthand ("G2", "YS", "RD", "BR", "W",
// "WD"). Returns nil for anything it does not recognize; it never panics, so
// the ingress layer can feed it raw user input.
func FromString(s string) *Card {
	s = strings.ToUpper(strings.TrimSpace(s))

	switch s {
	case "W", "WW":
		return &Card{Kind: Wild}
	case "WD":
		return &Card{Kind: WildDrawFour}
	}

	if len(s) != 2 {
		return nil
	}

	var color Color
	switch s[0] {
	case 'R':
		color = Red
	case 'Y':
		color = Yellow
	case 'G':
		color = Green
	case 'B':
		color = Blue
	default:
		return nil
	}

	switch {
	case s[1] >= '0' && s[1] <= '9':
		return &Card{Kind: Number, Color: color, Value: int(s[1] - '0')}
	case s[1] == 'S':
		return &Card{Kind: Skip, Color: color}
	case s[1] == 'D':
		return &Card{Kind: DrawTwo, Color: color}
	case s[1] == 'R':
		return &Card{Kind: Reverse, Color: color}
	}
	return nil
}

// String renders the shorthand form. Wilds render without a color even if one
// is in force at the table; the active color lives in game state, not on the card.
func (c Card) String() string {
	switch c.Kind {
	case WildDrawFour:
		return "WD"
	case Wild:
		return "W"
	case Skip:
		return c.Color.Initial() + "S"
	case DrawTwo:
		return c.Color.Initial() + "D"
	case Reverse:
		return c.Color.Initial() + "R"
	default:
		return fmt.Sprintf("%s%d", c.Color.Initial(), c.Value)
	}
}

// Equals reports structural equality. A nil other is never equal.
func (c Card) Equals(other *Card) bool {
	return other != nil && c == *other
}

// IsWild reports whether the card requires a declared active color.
func (c Card) IsWild() bool {
	return c.Kind == Wild || c.Kind == WildDrawFour
}

// IsSpecial reports whether playing the card triggers an effect beyond
// occupying the discard top.
func (c Card) IsSpecial() bool {
	return c.Kind != Number
}

// PlayableOn reports whether the card may legally be played on top. Wilds are
// always playable. When top is itself a wild, the comparison runs against the
// table's declared active color instead of the (absent) card color. A nil top
// is never playable on.
func (c Card) PlayableOn(top *Card, activeColor Color) bool {
	if c.IsWild() {
		return true
	}
	if top == nil {
		return false
	}
	if top.IsWild() {
		return c.Color == activeColor
	}
	if c.Kind == Number {
		return c.Color == top.Color || (top.Kind == Number && c.Value == top.Value)
	}
	return c.Color == top.Color || c.Kind == top.Kind
}

// Score is the card's end-of-game point value: face value for numbers, a flat
// SpecialScore for every other rank.
func (c Card) Score() int {
	if c.Kind == Number {
		return c.Value
	}
	return SpecialScore
}
