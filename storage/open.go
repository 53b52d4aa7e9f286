package storage

import (
	"context"
	"fmt"
)

// OpenCatalog connects to the catalog backend named by driver.
func OpenCatalog(ctx context.Context, driver, url, path string) (Catalog, error) {
	switch driver {
	case "", "postgres":
		if url == "" {
			return nil, fmt.Errorf("open catalog: DATABASE_URL is required for postgres")
		}
		return NewPostgresStore(ctx, url)
	case "sqlite":
		return NewSQLiteCatalog(path)
	default:
		return nil, fmt.Errorf("open catalog: unknown driver %q", driver)
	}
}

// MaskConnectionString hides the password in a connection URL for logging.
func MaskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx, atIdx := -1, -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}
	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
