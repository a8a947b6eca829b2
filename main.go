// coursegate はGoogleログインとサーバーサイドセッションを提供するAPIサーバー。
package main

import (
	"os"

	"github.com/hitoshi/coursegate/internal/app"
)

func main() {
	os.Exit(app.Main())
}
