// wekeo-mosaic command line entry point
package main

import "github.com/robert-malhotra/wekeo-mosaic/internal/cli"

func main() {
	cli.Execute()
}
