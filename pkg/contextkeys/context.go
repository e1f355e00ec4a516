package contextkeys

type ContextKey string

const (
	// DBContextKey holds the *gorm.DB handle (pool or transaction) for the
	// current request. Set by middleware.DBMiddleware, read by BaseHandler.GetDB.
	DBContextKey ContextKey = "db"
)
