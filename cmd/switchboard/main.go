// Command switchboard routes workstation requests to specialized handlers
// backed by a local completion service.
package main

func main() {
	Execute()
}
