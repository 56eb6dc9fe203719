package main

import (
	whatismyip "github.com/larivierec/whatismyip/pkg/cmd"
)

func main() {
	whatismyip.Start()
}
