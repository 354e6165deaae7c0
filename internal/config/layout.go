package config

// Layout is the fixed set of locations an environment is provisioned into.
// It is derived from the config and does not change during a run.
type Layout struct {
	ProjectDir   string
	Root         string
	UVDir        string
	UVExe        string
	PythonDir    string
	WheelsDir    string
	DownloadsDir string
	VenvDir      string
	VenvPython   string
	Bundle       string
}
