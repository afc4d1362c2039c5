/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package main

import (
	"github.com/josephgoksu/IdeaForge/cmd"
	"github.com/josephgoksu/IdeaForge/internal/logger"
)

func main() {
	defer logger.HandlePanic()
	cmd.Execute()
}
