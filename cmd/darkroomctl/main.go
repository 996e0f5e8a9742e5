// Command darkroomctl runs maintenance tasks against the gallery's storage
// and database.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
