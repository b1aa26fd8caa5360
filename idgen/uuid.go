package idgen

import "github.com/google/uuid"

// UUID 生成 UUID v7 字符串，按时间有序
//
// 用于请求 ID、幂等键等不需要 64 位整数的场景：
//
//	requestID := idgen.UUID()
func UUID() string {
	v7, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return v7.String()
}
