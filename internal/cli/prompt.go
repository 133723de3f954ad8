package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// confirmPrompt asks a yes/no question on the terminal. Anything but an
// explicit yes reads as no, so an EOF or a stray Enter never destroys data.
func confirmPrompt(message string) bool {
	fmt.Printf("%s [y/N]: ", message)

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true
	}
	return false
}

// promptLine reads one line of input, returning def when the user just
// presses Enter.
func promptLine(label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return def
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return def
	}
	return input
}
