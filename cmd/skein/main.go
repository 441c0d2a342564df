// Command skein is the task dependency and execution-order engine CLI.
package main

func main() {
	Execute()
}
