package mixer

import "errors"

var (
	errNoCurrentPassage    = errors.New("mixer: cannot start crossfade with no current passage")
	errDegenerateCrossfade = errors.New("mixer: crossfade requires a positive fade-out or fade-in duration")
)
