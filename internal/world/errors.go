package world

import "errors"

var (
	// ErrInvalidBallPosition reports a placement or bounds change that would
	// leave a ball outside the bounds or overlapping another ball.
	ErrInvalidBallPosition = errors.New("invalid_ball_position")
	// ErrInvalidBallParameter reports a non-positive or non-finite radius,
	// mass, position or velocity.
	ErrInvalidBallParameter = errors.New("invalid_ball_parameter")
	ErrInvalidBounds        = errors.New("invalid_bounds")
	ErrBallNotFound         = errors.New("ball_not_found")
	// ErrTimeInaccessible reports a query before a ball's earliest keyframe.
	ErrTimeInaccessible = errors.New("time_inaccessible")
	// ErrKeyframeListEmpty should be unreachable: purges append before they
	// delete.
	ErrKeyframeListEmpty = errors.New("keyframe_list_empty")
)

// ErrorKind separates expected validation failures from broken invariants.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindValidation
	KindInvariant
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// KindOf classifies err. Validation errors are ordinary per-command
// failures; invariant errors indicate a bug.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrKeyframeListEmpty):
		return KindInvariant
	case errors.Is(err, ErrInvalidBallPosition),
		errors.Is(err, ErrInvalidBallParameter),
		errors.Is(err, ErrInvalidBounds),
		errors.Is(err, ErrBallNotFound),
		errors.Is(err, ErrTimeInaccessible):
		return KindValidation
	default:
		return KindUnknown
	}
}
