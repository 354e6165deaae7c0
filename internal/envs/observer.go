package envs

import (
	"time"

	"github.com/BadgerOps/pyboot/internal/mirror"
)

// Provisioning steps reported to observers.
const (
	StepInstallUV     = "install-uv"
	StepInstallPython = "install-python"
	StepCreateVenv    = "create-venv"
	StepSync          = "sync"
	StepCheckSync     = "check-sync"
	StepFullInstall   = "full-install"
)

// Observer is notified after each provisioning step and selection run.
// Implementations must not block.
type Observer interface {
	StepFinished(step string, ok bool, message string, elapsed time.Duration)
	SourcesProbed(category mirror.Category, results []mirror.ProbeResult, choice mirror.Choice)
}
