// importctl drives the import pipeline API from the command line.
package main

func main() {
	execute()
}
