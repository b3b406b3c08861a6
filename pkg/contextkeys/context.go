package contextkeys

type ContextKey string

const (
	// DBContextKey — ключ, под которым middleware кладёт *gorm.DB
	// (пул или тестовую транзакцию) в контекст запроса.
	DBContextKey ContextKey = "db"

	// UserIDContextKey — идентификатор аутентифицированного пользователя.
	UserIDContextKey ContextKey = "user_id"
)
