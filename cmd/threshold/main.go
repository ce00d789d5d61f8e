// Command threshold turns a PPM image black and white around its mean
// intensity, splitting the work across a group of ranks.
//
//	threshold [flags] <input> <output>
package main

import (
	"os"

	"github.com/GriffinCanCode/pixmesh/internal/server"
)

func main() {
	os.Exit(server.Threshold.Main(os.Args[1:], os.Stdout, os.Stderr))
}
