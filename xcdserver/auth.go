// auth.go implements the credential-based authorization xc-bin's
// auth::mod.rs role check, adapted to this daemon's simpler model: every
// request already carries its caller's LOCAL_PEERCRED-derived
// control.Credential, and a handful of privileged methods (volume
// creation, killing another uid's container) require the caller to be
// root or the container's own owning uid.
package xcdserver

import (
	"fmt"

	"github.com/banksean/xcd/control"
)

// requireRoot rejects any caller that is not uid 0, the same coarse check
// xc-bin applies before provisioning a ZFS-backed volume (an operation
// that can expose arbitrary host datasets into a jail).
func requireRoot(cred control.Credential) error {
	if cred.UID != 0 {
		return fmt.Errorf("xcdserver: method requires root, caller uid %d", cred.UID)
	}
	return nil
}

// requireOwner rejects a caller that is neither root nor the uid that
// originally instantiated the container, mirroring xc-bin's
// "owner or root" rule for kill_container/commit_container.
func requireOwner(cred control.Credential, ownerUID uint32) error {
	if cred.UID == 0 || cred.UID == ownerUID {
		return nil
	}
	return fmt.Errorf("xcdserver: method requires root or owning uid %d, caller uid %d", ownerUID, cred.UID)
}
