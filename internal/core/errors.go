package core

import "errors"

var (
	// ErrProvisioningFailed means no character could be created within the attempt budget.
	ErrProvisioningFailed = errors.New("character provisioning failed")
	// ErrForbidden is returned when a user touches a thread that is not theirs.
	ErrForbidden = errors.New("forbidden")
	// ErrDisconnected is returned by a Transport once the client has gone away.
	ErrDisconnected = errors.New("transport disconnected")
)
