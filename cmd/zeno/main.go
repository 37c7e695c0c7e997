package main

import "github.com/zenostudy/zeno/cmd/zeno/cmd"

func main() {
	cmd.Execute()
}
