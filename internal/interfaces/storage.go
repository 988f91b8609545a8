package interfaces

// StorageManager - composite interface for storage operations
type StorageManager interface {
	KeyValueStorage() KeyValueStorage
	Close() error
}
