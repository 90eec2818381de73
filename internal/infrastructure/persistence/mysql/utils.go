package mysql

import (
	"errors"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// MySQL错误码
const (
	errDuplicateEntry  = 1062 // Duplicate entry 'xxx' for key 'yyy'
	errRowIsReferenced = 1451 // 删除被外键RESTRICT引用的行
	errNoReferencedRow = 1452 // 插入时外键指向的行不存在
)

func mysqlErrorNumber(err error) uint16 {
	var me *mysqldriver.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// isDuplicateError 判断是否为唯一索引冲突
func isDuplicateError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || mysqlErrorNumber(err) == errDuplicateEntry {
		return true
	}
	return strings.Contains(err.Error(), "Duplicate entry")
}

// isDuplicateOn 唯一索引冲突且冲突的是指定索引
func isDuplicateOn(err error, index string) bool {
	return isDuplicateError(err) && strings.Contains(err.Error(), index)
}

// isReferencedError 被外键引用,不能删除
func isReferencedError(err error) bool {
	return mysqlErrorNumber(err) == errRowIsReferenced
}

// isMissingReferenceError 外键指向的行不存在
func isMissingReferenceError(err error) bool {
	return mysqlErrorNumber(err) == errNoReferencedRow
}
