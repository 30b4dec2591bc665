package structure

import "github.com/pkg/errors"

var (
	// ErrNoGeometry is returned when neither end points nor exchange lines are given.
	ErrNoGeometry = errors.New("structure needs end points or exchange lines")
	// ErrDegenerateAxis is returned when the structure axis has zero length.
	ErrDegenerateAxis = errors.New("structure axis has zero length")
	// ErrDischargeUnimplemented is returned by a structure with no discharge physics.
	ErrDischargeUnimplemented = errors.New("discharge routine not implemented")
	// ErrNoDomain is returned when a rank holds part of an inlet but no
	// domain was supplied to build its enquiry.
	ErrNoDomain = errors.New("inlet member has no domain")
)
