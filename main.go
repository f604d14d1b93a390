// Command mistfs mounts a remote HTTP object store as a local FUSE
// filesystem.
package main

import "github.com/mistfs/mistfs/cmd"

func main() {
	cmd.Execute()
}
