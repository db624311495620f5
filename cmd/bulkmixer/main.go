// Command bulkmixer runs one bulk command aggregator server: it accepts
// TCP connections, frames and mixes their commands into bulks, and fans
// the bulks out to every enabled sink.
package main

import "github.com/madmazoku/bulkmixer/pkg/bulkmixer"

func main() {
	bulkmixer.Serve(bulkmixer.DefaultConfig())
}
