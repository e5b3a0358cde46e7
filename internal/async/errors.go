package async

import "errors"

var ErrClosed = errors.New("queue closed")
