package metrics

// Label 指标标签
//
// 避免高基数标签：限流 key（用户 ID、IP）不应作为标签，只记录 scope。
type Label struct {
	Key   string
	Value string
}

// L 创建一个 Label
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}
