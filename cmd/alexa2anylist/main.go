// alexa2anylist keeps an AnyList shopping list and the Alexa shopping list
// in sync. AnyList is authoritative; Alexa is treated as a thin voice
// frontend whose items flow into AnyList and whose deletions check items
// off.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
