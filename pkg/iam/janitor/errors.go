package janitor

import "github.com/identra-io/identra/pkg/errx"

var janitorErrors = errx.NewRegistry("JANITOR")

var (
	ErrAlreadyRunning = janitorErrors.Register("ALREADY_RUNNING", errx.TypeConflict, 409, "Janitor is already running")
)
