package engine

import (
	"fmt"

	"github.com/aprilasr/april/internal/aprilerr"
)

// APIVersion is the version callers must pass to Init. Bumped whenever the
// public surface changes incompatibly.
const APIVersion = 1

// Init performs process-wide one-time initialisation and asserts that the
// caller's compiled API version matches this build's. It is the only
// process-wide state in the package; everything else (model weights,
// session registries, the shared processing thread) is passed explicitly
// and owned by a *Model or *Session value, not a singleton.
func Init(callerVersion int) error {
	if callerVersion != APIVersion {
		return aprilerr.New(aprilerr.KindConfig, "Init",
			fmt.Errorf("caller compiled against API version %d, runtime is version %d", callerVersion, APIVersion))
	}
	return nil
}
