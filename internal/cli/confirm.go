package cli

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// confirmDestructive guards an irreversible operation (terminate, purge
// --scope all) the way getPassphrase() in the teacher's stacks.go guards
// a destroy: a masked, double-entry prompt instead of a plain y/N, so a
// stray keystroke can't silently confirm it. The operator types the
// project's code twice; terminal echo stays off both times.
func confirmDestructive(action, projectCode string) error {
	fmt.Println()
	color.Yellow("This will %s. This cannot be undone.", action)
	fmt.Printf("Type the project code %q to confirm: ", projectCode)
	first, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm again: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}
	fmt.Println()

	if strings.TrimSpace(string(first)) != projectCode || strings.TrimSpace(string(second)) != projectCode {
		return fmt.Errorf("confirmation did not match %q, aborted", projectCode)
	}
	return nil
}
