package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// EmbeddingModulePrefix 向量模块
	EmbeddingModulePrefix = "embedding"

	// EntityQuery 检索语句实体
	EntityQuery = "query"

	// KeyQueryEmbedding 查询向量缓存 (STRING, JSON 数组)
	// 格式: app:embedding:query:{model}:{sha256(text)}
	KeyQueryEmbedding = AppPrefix + ":" + EmbeddingModulePrefix + ":" + EntityQuery + ":%s:%s"
)
