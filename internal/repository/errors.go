package repository

import "strings"

// handleError converts database-specific uniqueness violations to repository errors.
func handleError(err error) error {
	errStr := err.Error()

	// PostgreSQL and SQLite
	if strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "UNIQUE constraint") ||
		// MySQL
		strings.Contains(errStr, "Duplicate entry") {
		if strings.Contains(errStr, "email") {
			return ErrEmailExists
		}
		if strings.Contains(errStr, "username") {
			return ErrUsernameExists
		}
	}

	return err
}
