// Command smn runs the SMN copy-number calling engine: batch calling,
// threshold retraining, validation against MLPA truth, and store upkeep.
package main

import (
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/smn.report/internal/version"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: smn <command> [flags]

Commands:
  call       classify test samples against the active threshold version
  train      fit and activate a new threshold version from MLPA labels
  validate   compare a run's calls against MLPA truth
  evidence   load population-evidence entries into the cache
  versions   list the threshold version history
  migrate    manage the store schema (up, down, status, force)
  version    print build information
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "call":
		err = runCall(os.Args[2:])
	case "train":
		err = runTrain(os.Args[2:])
	case "validate":
		err = runValidate(os.Args[2:])
	case "evidence":
		err = runEvidence(os.Args[2:])
	case "versions":
		err = runVersions(os.Args[2:])
	case "migrate":
		err = runMigrate(os.Args[2:])
	case "version":
		fmt.Printf("smn %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "smn %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}
