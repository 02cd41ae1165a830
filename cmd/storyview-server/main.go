// @title storyview-server API
// @version 1.0
// @description Responsive image pipeline server: source selection, blur-up placeholders and progressive reveal.
// @host localhost:8080
// @BasePath /api
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"storyview-server-go/internal/bootstrap"
)

func main() {
	fmt.Printf("[%s] [INFO] [BOOT] starting storyview-server...\n", time.Now().Format("2006-01-02 15:04:05.000"))
	if err := bootstrap.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "storyview-server failed: %v\n", err)
		os.Exit(1)
	}
}
