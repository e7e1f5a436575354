package utils

// PageResult 统一的分页响应体
type PageResult struct {
	List     interface{} `json:"list"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

// NewPageResult 组装分页响应，页码归一化规则与服务层一致
func NewPageResult(list interface{}, total int64, page, pageSize int) *PageResult {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return &PageResult{List: list, Total: total, Page: page, PageSize: pageSize}
}
