package main

import "github.com/yungbote/knowtree-backend/internal/cli"

func main() {
	cli.Execute()
}
