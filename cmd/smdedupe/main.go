package main

import "github.com/dbsmedya/smdedupe/cmd/smdedupe/cmd"

func main() {
	cmd.Execute()
}
