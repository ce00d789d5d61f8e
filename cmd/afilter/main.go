// Command afilter replaces every pixel of a PPM image with the mean of its
// rectangular neighbourhood, splitting the work across a group of ranks.
//
//	afilter [flags] <input> <output> <x radius> <y radius>
//
// input may be a glob such as 'frames/**/*.ppm', in which case output is a
// directory.
package main

import (
	"os"

	"github.com/GriffinCanCode/pixmesh/internal/server"
)

func main() {
	os.Exit(server.Averaging.Main(os.Args[1:], os.Stdout, os.Stderr))
}
