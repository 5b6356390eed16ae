package routes

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"school-device-issuance/internal/storage"
)

// GetStorageProvider pulls the storage provider injected by the server
// middleware out of the gin context.
func GetStorageProvider(c *gin.Context) (storage.Provider, error) {
	value, exists := c.Get("Storage")
	if !exists {
		return nil, ErrStorageProviderNotFound
	}
	provider, ok := value.(storage.Provider)
	if !ok {
		return nil, ErrInvalidStorageProvider
	}
	return provider, nil
}

// paramID parses a numeric path parameter.
func paramID(c *gin.Context, name string) (int64, error) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidParameter, name)
	}
	return id, nil
}

var (
	ErrStorageProviderNotFound = errors.New("storage provider not found")
	ErrInvalidStorageProvider  = errors.New("invalid storage provider")
)
