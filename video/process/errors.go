package process

import (
	"github.com/pkg/errors"
)

// ErrTransform marks a broken caller contract: missing calibration, or
// buffers whose format or size disagree. It is never retried.
var ErrTransform = errors.New("transform error")

func transformError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrTransform, format, args...)
}
