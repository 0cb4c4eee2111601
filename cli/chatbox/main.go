package main

import (
	"os"

	chatboxcmder "github.com/papercomputeco/chatbox/cmd/chatbox"
)

func main() {
	cmd := chatboxcmder.NewChatboxCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
