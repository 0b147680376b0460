package main

import "github.com/complytime/org-infra/internal/cmd"

func main() {
	cmd.Execute()
}
