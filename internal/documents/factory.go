package documents

import (
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"tierguard/internal/config"
	"tierguard/internal/constants"
)

// New builds the store selected by documents.backend. db is only used by the
// mongodb backend and may be nil otherwise.
func New(cfg config.DocumentsConfig, db *mongo.Database) (Store, error) {
	switch cfg.Backend {
	case "", constants.BackendFile:
		return NewFileStore(cfg.Dir), nil
	case constants.BackendMongoDB:
		if db == nil {
			return nil, fmt.Errorf("documents backend %q requires a MongoDB connection", cfg.Backend)
		}
		collection := cfg.MongoCollection
		if collection == "" {
			collection = constants.DefaultDocumentsCollection
		}
		return NewMongoStore(db, collection), nil
	default:
		return nil, fmt.Errorf("unsupported documents backend: %s", cfg.Backend)
	}
}
