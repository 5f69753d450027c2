package deploy

// Target selects the remote directory and the files a deployment touches.
type Target int

const (
	// TargetTest overwrites the whole test directory with the build output.
	TargetTest Target = iota
	// TargetProduction only replaces the executable and the static assets.
	TargetProduction
)

// TargetFromFlag maps the production flag to a Target.
func TargetFromFlag(production bool) Target {
	if production {
		return TargetProduction
	}

	return TargetTest
}

// String returns the lower-case target name used in logs.
func (t Target) String() string {
	switch t {
	case TargetTest:
		return "test"
	case TargetProduction:
		return "production"
	default:
		return "unknown"
	}
}
