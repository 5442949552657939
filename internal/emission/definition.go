package emission

import (
	"fmt"
	"os"

	fpmath "rewardengine/internal/math"

	"gopkg.in/yaml.v3"
)

// Definitions is the on-disk form of a set of curves.
type Definitions struct {
	Curves []CurveDefinition `yaml:"curves"`
}

// CurveDefinition describes one curve. Big numbers are decimal strings so
// YAML never routes them through float64.
type CurveDefinition struct {
	Name        string            `yaml:"name"`
	Preset      string            `yaml:"preset,omitempty"`
	StartUnit   uint64            `yaml:"start_unit"`
	Period      uint64            `yaml:"period,omitempty"`
	TotalSupply string            `yaml:"total_supply,omitempty"`
	Pieces      []PieceDefinition `yaml:"pieces,omitempty"`
}

type PieceDefinition struct {
	From  uint64           `yaml:"from"`
	To    uint64           `yaml:"to"`
	Terms []TermDefinition `yaml:"terms"`
}

type TermDefinition struct {
	Sign        string `yaml:"sign"` // "+" or "-"
	Coefficient string `yaml:"coefficient"`
	Power       uint   `yaml:"power"`
	Divisor     string `yaml:"divisor"`
}

// LoadDefinitions reads a YAML curve file and builds every curve in it.
func LoadDefinitions(path string) (map[string]*Curve, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read curve file: %w", err)
	}
	return ParseDefinitions(data)
}

// ParseDefinitions builds curves from YAML bytes.
func ParseDefinitions(data []byte) (map[string]*Curve, error) {
	var defs Definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse curve file: %w", err)
	}

	curves := make(map[string]*Curve, len(defs.Curves))
	for _, d := range defs.Curves {
		if _, dup := curves[d.Name]; dup {
			return nil, fmt.Errorf("curve %s defined twice", d.Name)
		}
		c, err := d.Build()
		if err != nil {
			return nil, err
		}
		curves[d.Name] = c
	}
	return curves, nil
}

// Build turns the definition into a Curve. A preset reference only takes the
// start unit from the definition.
func (d CurveDefinition) Build() (*Curve, error) {
	if d.Preset != "" {
		c, ok := Preset(d.Preset, d.StartUnit)
		if !ok {
			return nil, fmt.Errorf("curve %s: unknown preset %q", d.Name, d.Preset)
		}
		if d.Name != "" && d.Name != c.name {
			cp := *c
			cp.name = d.Name
			c = &cp
		}
		return c, nil
	}

	total, err := fpmath.Parse(d.TotalSupply)
	if err != nil {
		return nil, fmt.Errorf("curve %s: total_supply: %w", d.Name, err)
	}

	pieces := make([]Piece, 0, len(d.Pieces))
	for i, pd := range d.Pieces {
		p := Piece{From: pd.From, To: pd.To, Terms: make([]Term, 0, len(pd.Terms))}
		for j, td := range pd.Terms {
			coeff, err := fpmath.Parse(td.Coefficient)
			if err != nil {
				return nil, fmt.Errorf("curve %s piece %d term %d: coefficient: %w", d.Name, i, j, err)
			}
			div, err := fpmath.Parse(td.Divisor)
			if err != nil {
				return nil, fmt.Errorf("curve %s piece %d term %d: divisor: %w", d.Name, i, j, err)
			}
			var negative bool
			switch td.Sign {
			case "+", "":
			case "-":
				negative = true
			default:
				return nil, fmt.Errorf("curve %s piece %d term %d: bad sign %q", d.Name, i, j, td.Sign)
			}
			p.Terms = append(p.Terms, Term{Negative: negative, Coefficient: coeff, Power: td.Power, Divisor: div})
		}
		pieces = append(pieces, p)
	}

	// A definition with no pieces is linear.
	if len(pieces) == 0 {
		return Linear(d.Name, d.StartUnit, d.Period, total)
	}
	return New(d.Name, d.StartUnit, d.Period, total, pieces)
}
