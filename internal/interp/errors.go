package interp

import "errors"

// ErrProcessNotRunning is returned by Write when no interpreter process is
// alive. Callers recover by calling Launch.
var ErrProcessNotRunning = errors.New("interpreter process not running")
