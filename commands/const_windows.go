package commands

import (
	"os"
	"path/filepath"
)

var DEFAULT_WORKDIR = workdir()
var DEFAULT_CONFIG = filepath.Join(workdir(), "dataextract.yaml")

func workdir() string {
	programData := os.Getenv("ProgramData")
	if programData == "" {
		return `C:\ProgramData\dataextract`
	}

	return filepath.Join(programData, "dataextract")
}
