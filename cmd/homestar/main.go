// Command homestar runs the peer-to-peer Wasm workflow node, following
// the teacher corpus's cmd/bootstrap layout: a package-level cobra root
// command in this package, invoked from a minimal main.
package main

func main() {
	Execute()
}
