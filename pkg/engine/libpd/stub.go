//go:build !libpd

package libpd

import (
	"errors"

	"github.com/Honorable-Knights-of-the-Roundtable/pdbridge/pkg/engine"
)

var ErrNotEnabled = errors.New("libpd support not enabled (build with -tags libpd)")

func Available() bool {
	return false
}

func New() (engine.Engine, error) {
	return nil, ErrNotEnabled
}
