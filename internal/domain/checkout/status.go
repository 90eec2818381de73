package checkout

import "strings"

// Status 借阅状态,统一使用小写存储和比较
type Status string

const (
	StatusPending  Status = "pending"
	StatusReturned Status = "returned"
	StatusOverdue  Status = "overdue"
	StatusMissing  Status = "missing"
)

// AllStatuses 全部合法状态(顺序用于错误提示)
var AllStatuses = []Status{StatusPending, StatusReturned, StatusOverdue, StatusMissing}

// ParseStatus 解析外部输入,大小写和首尾空白不敏感
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, v := range AllStatuses {
		if s == v {
			return s, nil
		}
	}
	return "", NewInvalidStatusError(raw)
}

// String 实现Stringer接口
func (s Status) String() string {
	return string(s)
}

// IsTerminal returned之后只能完结(归档+删除),不能再变更状态
func (s Status) IsTerminal() bool {
	return s == StatusReturned
}

func allowedStatusList() string {
	names := make([]string, len(AllStatuses))
	for i, s := range AllStatuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
