package tool

import "os/exec"

// Status reports whether one engine program resolves on PATH.
type Status struct {
	Name    string `json:"name"`
	Program string `json:"program"`
	Found   bool   `json:"found"`
	Path    string `json:"path,omitempty"`
}

// Lookup resolves each named program on PATH.
func Lookup(programs map[string]string, order ...string) []Status {
	report := make([]Status, 0, len(order))
	for _, name := range order {
		program := programs[name]
		s := Status{Name: name, Program: program}
		if path, err := exec.LookPath(program); err == nil {
			s.Found = true
			s.Path = path
		}
		report = append(report, s)
	}
	return report
}
