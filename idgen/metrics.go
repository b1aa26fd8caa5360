package idgen

// Metrics 指标常量定义
const (
	// MetricGenerated Snowflake ID 生成总数 (Counter)
	MetricGenerated = "idgen_generated_total"

	// MetricClockBackwards 因时钟回拨失败的次数 (Counter)
	MetricClockBackwards = "idgen_clock_backwards_total"

	// MetricResolves 模块身份解析次数，按命中来源区分 (Counter)
	MetricResolves = "idgen_module_resolves_total"

	LabelWorker     = "worker"
	LabelDatacenter = "datacenter"
	LabelSource     = "source"
)

// 身份解析来源
const (
	sourceLocal   = "local"
	sourceRedis   = "redis"
	sourceStore   = "store"
	sourceDefault = "default"
)
