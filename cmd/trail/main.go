// Command trail manages trace tables and exercises the configured sink.
package main

import "github.com/Combine-Capital/trail/internal/cli"

func main() {
	cli.Execute()
}
