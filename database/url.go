package database

import (
	"strings"
)

// ConstructDatabaseURL appends databaseName to baseURL, keeping any query string,
// and defaults sslmode to disable. An empty databaseName returns baseURL untouched.
func ConstructDatabaseURL(baseURL, databaseName string) string {
	if databaseName == "" {
		return baseURL
	}

	base, query, hasQuery := strings.Cut(strings.TrimRight(baseURL, "/"), "?")
	base = strings.TrimRight(base, "/") + "/" + databaseName

	if !strings.Contains(query, "sslmode=") {
		if query != "" {
			query += "&"
		}
		query += "sslmode=disable"
		hasQuery = true
	}

	if !hasQuery {
		return base
	}
	return base + "?" + query
}
