// Command tandem is the operator CLI for a tandem session store pair. It
// speaks directly to the configured primary and cache replicas; it is infra
// tooling, not a serving surface.
package main

func main() {
	Execute()
}
