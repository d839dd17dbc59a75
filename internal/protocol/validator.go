package protocol

import (
	"errors"
	"fmt"
)

// Validator layers semantic range checks over a Reader. It keeps reading
// through violations and accumulates every one, so a caller can report
// everything wrong with a packet in a single reply. Parsed values are only
// trustworthy when Ok reports true.
type Validator struct {
	r          *Reader
	violations []error
}

// NewValidator wraps an in-progress reader.
func NewValidator(r *Reader) *Validator {
	return &Validator{r: r}
}

func (v *Validator) addf(format string, args ...any) {
	v.violations = append(v.violations, fmt.Errorf(format, args...))
}

// Slot reads a slot index byte and requires 1 ≤ slot ≤ max.
func (v *Validator) Slot(max int) int {
	slot := int(v.r.Byte())
	if v.r.err == nil && (slot < 1 || slot > max) {
		v.addf("slot %d outside 1..%d", slot, max)
	}
	return slot
}

// Quantity reads an int16 amount and requires 1 ≤ qty ≤ max.
func (v *Validator) Quantity(max int) int {
	qty := int(v.r.Int16())
	if v.r.err == nil && (qty < 1 || qty > max) {
		v.addf("quantity %d outside 1..%d", qty, max)
	}
	return qty
}

// Amount reads an int32 and requires 1 ≤ amount ≤ max. Gold movements use
// this wider form.
func (v *Validator) Amount(max int) int {
	amount := int(v.r.Int32())
	if v.r.err == nil && (amount < 1 || amount > max) {
		v.addf("amount %d outside 1..%d", amount, max)
	}
	return amount
}

// BoundedString reads a legacy string and requires min ≤ len ≤ max runes.
func (v *Validator) BoundedString(min, max int) string {
	s := v.r.String()
	if v.r.err == nil {
		if n := len([]rune(s)); n < min || n > max {
			v.addf("string length %d outside %d..%d", n, min, max)
		}
	}
	return s
}

// Coord reads an (x, y) byte pair and requires both inside the map bounds.
func (v *Validator) Coord(width, height int) (int, int) {
	x := int(v.r.Byte())
	y := int(v.r.Byte())
	if v.r.err == nil {
		if x < 1 || x > width {
			v.addf("x %d outside 1..%d", x, width)
		}
		if y < 1 || y > height {
			v.addf("y %d outside 1..%d", y, height)
		}
	}
	return x, y
}

// Heading reads a direction byte and requires 1..4 (N, E, S, W).
func (v *Validator) Heading() int {
	h := int(v.r.Byte())
	if v.r.err == nil && (h < 1 || h > 4) {
		v.addf("heading %d outside 1..4", h)
	}
	return h
}

// Ok reports whether the packet parsed cleanly with zero violations.
func (v *Validator) Ok() bool {
	return v.r.err == nil && len(v.violations) == 0
}

// Err joins the reader failure and every accumulated violation.
func (v *Validator) Err() error {
	if v.r.err == nil && len(v.violations) == 0 {
		return nil
	}
	all := make([]error, 0, len(v.violations)+1)
	if v.r.err != nil {
		all = append(all, v.r.err)
	}
	all = append(all, v.violations...)
	return errors.Join(all...)
}
