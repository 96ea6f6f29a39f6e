package freezeguard

import "github.com/go-errors/errors"

// ErrBlockedByFreezeGuard is returned when appending a route's freeze links
// would exceed some hop's usable capacity (§4.5, §7 BlockedByFreezeGuard).
var ErrBlockedByFreezeGuard = errors.New("freezeguard: blocked by freeze guard")
