package runner

// QuarantineLookup is the narrow persistence interface the runner needs to
// know whether a test is currently quarantined. Backed by the `quarantine`
// table spec.md §6 names; kept narrow so this package never depends on
// storage directly.
type QuarantineLookup interface {
	IsQuarantined(testID string) bool
}

// applyQuarantine overlays a quarantined test's status per spec.md §4.9
// step 4: "off" leaves status alone, "warn" rewrites to Warn, "strict"
// rewrites to Fail. Non-quarantined tests are never touched regardless of
// mode.
func applyQuarantine(quarantined bool, mode string, status TestStatus) TestStatus {
	if !quarantined {
		return status
	}
	switch mode {
	case "warn":
		return StatusWarn
	case "strict":
		return StatusFail
	default:
		return status
	}
}
