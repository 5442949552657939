package emission

import (
	"fmt"

	fpmath "rewardengine/internal/math"

	sdkmath "cosmossdk.io/math"
)

// Term is one summand of a piece: sign * Coefficient * elapsed^Power / Divisor.
// Each term is truncated on its own before the piece sums them.
type Term struct {
	Negative    bool
	Coefficient sdkmath.Int
	Power       uint
	Divisor     sdkmath.Int
}

// Piece evaluates its terms for elapsed values in [From, To).
type Piece struct {
	From  uint64
	To    uint64
	Terms []Term
}

// Curve maps a unit (block height or timestamp) to the cumulative amount of
// tokens emitted by that unit. Curves are immutable once built by New.
type Curve struct {
	name        string
	startUnit   uint64
	period      uint64
	totalSupply sdkmath.Int
	pieces      []Piece
}

// New validates the piece layout and returns a curve. Pieces must be
// contiguous, start at 0 and end at period.
func New(name string, startUnit, period uint64, totalSupply sdkmath.Int, pieces []Piece) (*Curve, error) {
	if period == 0 {
		return nil, fmt.Errorf("curve %s: zero period", name)
	}
	if totalSupply.IsNil() || totalSupply.IsNegative() {
		return nil, fmt.Errorf("curve %s: invalid total supply", name)
	}
	if len(pieces) == 0 {
		return nil, fmt.Errorf("curve %s: no pieces", name)
	}

	var next uint64
	for i, p := range pieces {
		if p.From != next {
			return nil, fmt.Errorf("curve %s: piece %d starts at %d, want %d", name, i, p.From, next)
		}
		if p.To <= p.From {
			return nil, fmt.Errorf("curve %s: piece %d is empty", name, i)
		}
		if len(p.Terms) == 0 {
			return nil, fmt.Errorf("curve %s: piece %d has no terms", name, i)
		}
		for j, term := range p.Terms {
			if term.Coefficient.IsNil() || term.Coefficient.IsNegative() {
				return nil, fmt.Errorf("curve %s: piece %d term %d: invalid coefficient", name, i, j)
			}
			if term.Divisor.IsNil() || !term.Divisor.IsPositive() {
				return nil, fmt.Errorf("curve %s: piece %d term %d: divisor must be positive", name, i, j)
			}
			if term.Power > 2 {
				return nil, fmt.Errorf("curve %s: piece %d term %d: power %d above 2", name, i, j, term.Power)
			}
		}
		next = p.To
	}
	if next != period {
		return nil, fmt.Errorf("curve %s: pieces end at %d, period is %d", name, next, period)
	}

	return &Curve{
		name:        name,
		startUnit:   startUnit,
		period:      period,
		totalSupply: totalSupply,
		pieces:      pieces,
	}, nil
}

// Linear builds the single-piece curve totalSupply * elapsed / period.
func Linear(name string, startUnit, period uint64, totalSupply sdkmath.Int) (*Curve, error) {
	return New(name, startUnit, period, totalSupply, []Piece{{
		From: 0,
		To:   period,
		Terms: []Term{{
			Coefficient: totalSupply,
			Power:       1,
			Divisor:     fpmath.FromUint64(period),
		}},
	}})
}

func (c *Curve) Name() string             { return c.name }
func (c *Curve) StartUnit() uint64        { return c.startUnit }
func (c *Curve) Period() uint64           { return c.period }
func (c *Curve) EndUnit() uint64          { return c.startUnit + c.period }
func (c *Curve) TotalSupply() sdkmath.Int { return c.totalSupply }
func (c *Curve) Pieces() []Piece          { return c.pieces }

// Boundaries returns the elapsed values where one piece hands over to the next.
func (c *Curve) Boundaries() []uint64 {
	out := make([]uint64, 0, len(c.pieces)-1)
	for _, p := range c.pieces[:len(c.pieces)-1] {
		out = append(out, p.To)
	}
	return out
}

// WithStart returns a copy of the curve anchored at a different start unit.
func (c *Curve) WithStart(startUnit uint64) *Curve {
	cp := *c
	cp.startUnit = startUnit
	return &cp
}

// CumulativeEmitted returns the total emitted by unit. Both endpoints are
// closed by rule: 0 at or before the start, totalSupply at or after the end.
func (c *Curve) CumulativeEmitted(unit uint64) (sdkmath.Int, error) {
	if unit <= c.startUnit {
		return sdkmath.ZeroInt(), nil
	}
	elapsed := unit - c.startUnit
	if elapsed >= c.period {
		return c.totalSupply, nil
	}
	for i := range c.pieces {
		if elapsed < c.pieces[i].To {
			return c.evaluate(i, elapsed)
		}
	}
	return c.totalSupply, nil
}

// EvaluatePiece evaluates piece i at elapsed regardless of its range. Used to
// check continuity at boundaries.
func (c *Curve) EvaluatePiece(i int, elapsed uint64) (sdkmath.Int, error) {
	if i < 0 || i >= len(c.pieces) {
		return sdkmath.Int{}, fmt.Errorf("curve %s: no piece %d", c.name, i)
	}
	return c.evaluate(i, elapsed)
}

func (c *Curve) evaluate(i int, elapsed uint64) (sdkmath.Int, error) {
	x := fpmath.FromUint64(elapsed)
	total := sdkmath.ZeroInt()

	for _, term := range c.pieces[i].Terms {
		xp, err := fpmath.Pow(x, term.Power)
		if err != nil {
			return sdkmath.Int{}, fmt.Errorf("curve %s piece %d: %w", c.name, i, err)
		}
		v, err := fpmath.MulDiv(term.Coefficient, xp, term.Divisor)
		if err != nil {
			return sdkmath.Int{}, fmt.Errorf("curve %s piece %d: %w", c.name, i, err)
		}
		if term.Negative {
			total, err = fpmath.SignedSub(total, v)
		} else {
			total, err = fpmath.Add(total, v)
		}
		if err != nil {
			return sdkmath.Int{}, fmt.Errorf("curve %s piece %d: %w", c.name, i, err)
		}
	}

	if total.IsNegative() {
		return sdkmath.Int{}, fmt.Errorf("curve %s piece %d: negative value at %d: %w", c.name, i, elapsed, fpmath.ErrArithmeticOverflow)
	}
	return total, nil
}

// Emitted returns CumulativeEmitted(to) - CumulativeEmitted(from).
func (c *Curve) Emitted(from, to uint64) (sdkmath.Int, error) {
	if to <= from {
		return sdkmath.ZeroInt(), nil
	}
	a, err := c.CumulativeEmitted(from)
	if err != nil {
		return sdkmath.Int{}, err
	}
	b, err := c.CumulativeEmitted(to)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return fpmath.Sub(b, a)
}
