package mockapi

import "errors"

var (
	// ErrAlreadyStarted is returned by Startup and Serve while the server is running.
	ErrAlreadyStarted = errors.New("mockapi: server has already been started")

	// ErrDynamicRoutes is returned by New when Config.Routes holds a Dynamic spec.
	// Functions cannot be shipped to the serving process; use Register and Config.Name.
	ErrDynamicRoutes = errors.New("mockapi: dynamic routes must be registered by name")

	// ErrUnknownName is returned when Config.Name was never passed to Register.
	ErrUnknownName = errors.New("mockapi: no route table registered under that name")

	// ErrNotReady is returned by Startup when the child exits before serving.
	ErrNotReady = errors.New("mockapi: child process exited before serving (is mockapi.Main called first in TestMain?)")

	// ErrInChild is returned by Startup inside a process spawned by Startup.
	ErrInChild = errors.New("mockapi: Startup called inside a mockapi child; call mockapi.Main first in TestMain or main")
)
