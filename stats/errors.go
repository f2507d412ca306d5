package stats

import "github.com/pkg/errors"

var errNoSnapshot = errors.New("collector returned no snapshot")
