package v1

var (
	// common errors
	ErrSuccess             = newError(0, "ok")
	ErrBadRequest          = newError(400, "bad request")
	ErrUnauthorized        = newError(401, "unauthorized")
	ErrNotFound            = newError(404, "not found")
	ErrInternalServerError = newError(500, "internal server error")

	// instance errors
	ErrInstanceNotFound    = newError(1001, "instance not found")
	ErrNoCapacity          = newError(1002, "no capacity matches the request")
	ErrProviderUnavailable = newError(1003, "compute provider unavailable")

	// standby association errors
	ErrAlreadyAssociated   = newError(2001, "primary instance already has an active standby")
	ErrStandbyInUse        = newError(2002, "standby instance already serves another primary")
	ErrAssociationNotFound = newError(2003, "no active standby association")

	// failover errors
	ErrFailoverInProgress = newError(3001, "failover already in progress")
	ErrNoFailoverRunning  = newError(3002, "no failover in progress")
	ErrEventNotFound      = newError(3003, "failover event not found")

	// snapshot errors
	ErrSnapshotNotFound = newError(4001, "snapshot not found")
	ErrCorruptSnapshot  = newError(4002, "snapshot archive failed checksum verification")
)
