package rsmu

import (
	"strings"

	"rsmu-go/errcode"
)

// Family identifies a synchronizer product line.
type Family uint8

const (
	FamilyUnknown Family = iota
	ClockMatrix
	Sabre
	SnowLotus
	FemtoClock3
)

func (f Family) String() string {
	switch f {
	case ClockMatrix:
		return "clockmatrix"
	case Sabre:
		return "sabre"
	case SnowLotus:
		return "snowlotus"
	case FemtoClock3:
		return "femtoclock3"
	default:
		return "unknown"
	}
}

// Revision selects register address variants within a family.
// Only FemtoClock3 has more than one.
type Revision uint8

const (
	RevDefault Revision = iota
	RevW                // FC3W
	RevA                // FC3A
)

func (r Revision) String() string {
	switch r {
	case RevW:
		return "fc3w"
	case RevA:
		return "fc3a"
	default:
		return "default"
	}
}

// Part numbers accepted by ParseFamily.
var partFamilies = map[string]Family{
	"8a34000":  ClockMatrix,
	"8a34001":  ClockMatrix,
	"82p33810": Sabre,
	"82p33811": Sabre,
	"8v19n850": SnowLotus,
	"8v19n851": SnowLotus,
	"rc32312":  FemtoClock3,
	"rc32308":  FemtoClock3,
}

// ParseFamily accepts a family name ("clockmatrix", "cm", ...) or a part
// number ("8a34001", "rc32312", optionally prefixed with "idt,").
func ParseFamily(s string) (Family, error) {
	k := strings.ToLower(strings.TrimSpace(s))
	k = strings.TrimPrefix(k, "idt,")
	switch k {
	case "clockmatrix", "cm":
		return ClockMatrix, nil
	case "sabre":
		return Sabre, nil
	case "snowlotus", "sl":
		return SnowLotus, nil
	case "femtoclock3", "fc3":
		return FemtoClock3, nil
	}
	if f, ok := partFamilies[k]; ok {
		return f, nil
	}
	return FamilyUnknown, errcode.Unsupported("parse_family", s)
}
